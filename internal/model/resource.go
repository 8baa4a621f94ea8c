package model

// SourceSystem names double as descriptor code values in the warehouse.
const (
	SourceSystemCanvas    = "Canvas"
	SourceSystemGoogle    = "Google"
	SourceSystemSchoology = "Schoology"
)

func KnownSourceSystems() []string {
	return []string{SourceSystemCanvas, SourceSystemGoogle, SourceSystemSchoology}
}

// Submission status code values synthesized for Schoology assignments that
// have no vendor-reported submission.
const (
	SubmissionStatusMissing  = "missing"
	SubmissionStatusUpcoming = "Upcoming"
)

// Resource is a named kind of record managed independently by the sync engine.
// IdentityColumns concatenated (sorted by column name, joined by "-") yield the
// SourceId used as the sync database primary key.
type Resource struct {
	Name            string
	IdentityColumns []string
}

var (
	ResourceUsers             = Resource{Name: "Users", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceSections          = Resource{Name: "Sections", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceAssignments       = Resource{Name: "Assignments", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceSubmissions       = Resource{Name: "Submissions", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceEnrollments       = Resource{Name: "Enrollments", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceAttendanceEvents  = Resource{Name: "AttendanceEvents", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceGrades            = Resource{Name: "Grades", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceSystemActivities  = Resource{Name: "SystemActivities", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceSectionActivities = Resource{Name: "SectionActivities", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceDiscussionReplies = Resource{Name: "DiscussionReplies", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceSectionUpdates    = Resource{Name: "SectionUpdates", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceRoles             = Resource{Name: "Roles", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
	ResourceCourses           = Resource{Name: "Courses", IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"}}
)

// Timestamp columns every snapshot file carries, formatted "2006-01-02 15:04:05".
var SnapshotTimestampColumns = []string{
	"CreateDate",
	"LastModifiedDate",
	"SourceCreateDate",
	"SourceLastModifiedDate",
}

const TimestampLayout = "2006-01-02 15:04:05"

// SnapshotFileLayout is the filename layout for CSV snapshots; lexicographic
// order equals chronological order.
const SnapshotFileLayout = "2006-01-02-15-04-05"
