package extract

import (
	"context"
	"fmt"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/config"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

// CanvasFetcher reads the Canvas REST API with a static access token.
// Sections hang off courses, so Sections() caches the section-to-course map
// the child fetches need.
type CanvasFetcher struct {
	client    *Client
	baseURL   string
	accountID string

	courseBySection map[string]string
}

func NewCanvasFetcher(cfg *config.Config) *CanvasFetcher {
	return &CanvasFetcher{
		client:          NewClient(cfg, NewStaticTokenAuthorizer(cfg.Sources.Canvas.AccessToken)),
		baseURL:         cfg.Sources.Canvas.BaseURL,
		accountID:       cfg.Sources.Canvas.AccountID,
		courseBySection: make(map[string]string),
	}
}

func (f *CanvasFetcher) SourceSystem() string {
	return model.SourceSystemCanvas
}

// getPaged follows Canvas page-numbered pagination eagerly.
func (f *CanvasFetcher) getPaged(ctx context.Context, path string) ([]map[string]interface{}, error) {
	var all []map[string]interface{}
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s%s?per_page=100&page=%d", f.baseURL, path, page)
		var batch []map[string]interface{}
		if _, err := f.client.GetJSON(ctx, url, &batch); err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return all, nil
		}
		all = append(all, batch...)
	}
}

func (f *CanvasFetcher) Users(ctx context.Context) (*tabular.Table, error) {
	raw, err := f.getPaged(ctx, "/api/v1/accounts/"+f.accountID+"/users")
	if err != nil {
		return nil, err
	}
	return mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"Name", "sortable_name"},
		{"EmailAddress", "email"},
		{"LocalUserIdentifier", "login_id"},
		{"SISUserIdentifier", "sis_user_id"},
		{"SourceCreateDate", "created_at"},
		{"SourceLastModifiedDate", "updated_at"},
	}, map[string]string{
		"SourceSystem": model.SourceSystemCanvas,
		"UserRole":     "Student",
	}), nil
}

func (f *CanvasFetcher) Sections(ctx context.Context) (*tabular.Table, error) {
	courses, err := f.getPaged(ctx, "/api/v1/accounts/"+f.accountID+"/courses")
	if err != nil {
		return nil, err
	}

	var raw []map[string]interface{}
	for _, course := range courses {
		courseID := stringify(course["id"])
		sections, err := f.getPaged(ctx, "/api/v1/courses/"+courseID+"/sections")
		if err != nil {
			return nil, err
		}
		for _, s := range sections {
			s["course_workflow_state"] = course["workflow_state"]
			s["term"] = lookup(course, "term.name")
			f.courseBySection[stringify(s["id"])] = courseID
		}
		raw = append(raw, sections...)
	}

	return mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"SISSectionIdentifier", "sis_section_id"},
		{"Title", "name"},
		{"LMSSectionStatus", "course_workflow_state"},
		{"Term", "term"},
		{"SourceCreateDate", "created_at"},
	}, map[string]string{
		"SourceSystem": model.SourceSystemCanvas,
	}), nil
}

func (f *CanvasFetcher) SectionAssociations(ctx context.Context, sectionID string) (*tabular.Table, error) {
	raw, err := f.getPaged(ctx, "/api/v1/sections/"+sectionID+"/enrollments")
	if err != nil {
		return nil, err
	}
	return mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"LMSUserSourceSystemIdentifier", "user_id"},
		{"EnrollmentStatus", "enrollment_state"},
		{"UserRole", "type"},
		{"SourceCreateDate", "created_at"},
		{"SourceLastModifiedDate", "updated_at"},
	}, map[string]string{
		"SourceSystem":                     model.SourceSystemCanvas,
		"LMSSectionSourceSystemIdentifier": sectionID,
	}), nil
}

func (f *CanvasFetcher) Assignments(ctx context.Context, sectionID string) (*tabular.Table, error) {
	courseID, ok := f.courseBySection[sectionID]
	if !ok {
		return &tabular.Table{}, nil
	}
	raw, err := f.getPaged(ctx, "/api/v1/courses/"+courseID+"/assignments")
	if err != nil {
		return nil, err
	}
	return mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"Title", "name"},
		{"AssignmentDescription", "description"},
		{"DueDateTime", "due_at"},
		{"StartDateTime", "unlock_at"},
		{"EndDateTime", "lock_at"},
		{"MaxPoints", "points_possible"},
		{"SubmissionType", "submission_types"},
		{"SourceCreateDate", "created_at"},
		{"SourceLastModifiedDate", "updated_at"},
	}, map[string]string{
		"SourceSystem":                     model.SourceSystemCanvas,
		"LMSSectionSourceSystemIdentifier": sectionID,
		"AssignmentCategory":               "assignment",
	}), nil
}

// canvasSubmissionStatus normalizes workflow_state to the UDM code values the
// harmonizer resolves as descriptors.
var canvasSubmissionStatus = map[string]string{
	"submitted":      "submitted",
	"graded":         "graded",
	"pending_review": "pending_review",
	"unsubmitted":    "missing",
}

func (f *CanvasFetcher) Submissions(ctx context.Context, sectionID, assignmentID string) (*tabular.Table, error) {
	raw, err := f.getPaged(ctx, "/api/v1/sections/"+sectionID+"/assignments/"+assignmentID+"/submissions")
	if err != nil {
		return nil, err
	}
	t := mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"LMSUserSourceSystemIdentifier", "user_id"},
		{"SubmissionStatus", "workflow_state"},
		{"SubmissionDateTime", "submitted_at"},
		{"EarnedPoints", "score"},
		{"Grade", "grade"},
	}, map[string]string{
		"SourceSystem":                     model.SourceSystemCanvas,
		"LMSSectionSourceSystemIdentifier": sectionID,
		"AssignmentSourceSystemIdentifier": assignmentID,
	})
	for _, row := range t.Rows {
		if normalized, ok := canvasSubmissionStatus[row["SubmissionStatus"]]; ok {
			row["SubmissionStatus"] = normalized
		}
	}
	return t, nil
}

// Grades come from the enrollment payload's nested grades object.
func (f *CanvasFetcher) Grades(ctx context.Context, sectionID string) (*tabular.Table, error) {
	raw, err := f.getPaged(ctx, "/api/v1/sections/"+sectionID+"/enrollments")
	if err != nil {
		return nil, err
	}
	return mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"LMSUserSourceSystemIdentifier", "user_id"},
		{"Grade", "grades.current_grade"},
		{"GradeType", "grades.current_score"},
	}, map[string]string{
		"SourceSystem":                     model.SourceSystemCanvas,
		"LMSSectionSourceSystemIdentifier": sectionID,
	}), nil
}

// Canvas has no section activity or attendance feed.
func (f *CanvasFetcher) SectionActivities(context.Context, string) (*tabular.Table, error) {
	return &tabular.Table{}, nil
}

func (f *CanvasFetcher) AttendanceEvents(context.Context, string) (*tabular.Table, error) {
	return &tabular.Table{}, nil
}

func (f *CanvasFetcher) SystemActivities(ctx context.Context) (*tabular.Table, error) {
	raw, err := f.getPaged(ctx, "/api/v1/audit/authentication/accounts/"+f.accountID)
	if err != nil {
		return nil, err
	}
	return mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"LMSUserSourceSystemIdentifier", "links.user"},
		{"ActivityType", "event_type"},
		{"ActivityDateTime", "created_at"},
	}, map[string]string{
		"SourceSystem": model.SourceSystemCanvas,
	}), nil
}

// Intermediates keeps change tracking for the account-level resources the
// section fetches derive from.
func (f *CanvasFetcher) Intermediates(ctx context.Context) ([]IntermediateSet, error) {
	courses, err := f.getPaged(ctx, "/api/v1/accounts/"+f.accountID+"/courses")
	if err != nil {
		return nil, err
	}
	roles, err := f.getPaged(ctx, "/api/v1/accounts/"+f.accountID+"/roles")
	if err != nil {
		return nil, err
	}

	constants := map[string]string{"SourceSystem": model.SourceSystemCanvas}
	return []IntermediateSet{
		{
			Resource: model.ResourceCourses,
			Rows: mapTable(courses, fieldMap{
				{"SourceSystemIdentifier", "id"},
				{"Name", "name"},
				{"CourseState", "workflow_state"},
				{"SourceCreateDate", "created_at"},
			}, constants),
		},
		{
			Resource: model.ResourceRoles,
			Rows: mapTable(roles, fieldMap{
				{"SourceSystemIdentifier", "id"},
				{"Name", "label"},
				{"BaseRoleType", "base_role_type"},
			}, constants),
		},
	}, nil
}
