package csvio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

func parseTS(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02-15-04-05", value)
	require.NoError(t, err)
	return ts
}

func sectionsTable(ids ...string) *tabular.Table {
	t := tabular.New("SourceSystem", "SourceSystemIdentifier")
	for _, id := range ids {
		t.Append(tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": id})
	}
	return t
}

func TestWriterFilenameIsTimestamp(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	path, err := w.Write(sectionsTable("S1"), parseTS(t, "2024-09-01-10-30-00"), SectionsDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sections", "2024-09-01-10-30-00.csv"), path)
}

func TestReaderPicksLatestSnapshot(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	_, err := w.Write(sectionsTable("old"), parseTS(t, "2024-09-01-10-00-00"), SectionsDir)
	require.NoError(t, err)
	_, err = w.Write(sectionsTable("new"), parseTS(t, "2024-09-02-10-00-00"), SectionsDir)
	require.NoError(t, err)

	r := NewReader(root)
	got := r.Sections()
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "new", got.Rows[0]["SourceSystemIdentifier"])
}

func TestReaderMissingPartitionYieldsEmptyTable(t *testing.T) {
	r := NewReader(t.TempDir())
	assert.Equal(t, 0, r.Users().Len())
}

func TestWritePartitionedEmitsPlaceholders(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	ts := parseTS(t, "2024-09-01-10-00-00")

	grades := tabular.New("LMSSectionSourceSystemIdentifier", "Grade")
	grades.Append(tabular.Row{"LMSSectionSourceSystemIdentifier": "S1", "Grade": "A"})

	paths, err := w.WritePartitioned(grades.GroupBy("LMSSectionSourceSystemIdentifier"),
		[]string{"S1", "S2"}, ts, GradesDir)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	// The section with no grades still gets a file, zero bytes and no header.
	info, err := os.Stat(filepath.Join(root, "section=S2", "grades", "2024-09-01-10-00-00.csv"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestPerSectionAggregateSkipsPlaceholders(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)
	ts := parseTS(t, "2024-09-01-10-00-00")

	assignments := tabular.New("LMSSectionSourceSystemIdentifier", "SourceSystemIdentifier")
	assignments.Append(tabular.Row{"LMSSectionSourceSystemIdentifier": "S1", "SourceSystemIdentifier": "A1"})

	_, err := w.WritePartitioned(assignments.GroupBy("LMSSectionSourceSystemIdentifier"),
		[]string{"S1", "S2"}, ts, AssignmentsDir)
	require.NoError(t, err)

	r := NewReader(root)
	got := r.Assignments(sectionsTable("S1", "S2"))
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "A1", got.Rows[0]["SourceSystemIdentifier"])
}

func TestSystemActivitiesDeduplicatesAcrossDates(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	activity := tabular.New("SourceSystem", "SourceSystemIdentifier", "ActivityDateTime")
	activity.Append(tabular.Row{"SourceSystem": "Schoology", "SourceSystemIdentifier": "E1", "ActivityDateTime": "2024-09-01 08:00:00"})

	// The same event written in two runs of the same date partition.
	_, err := w.Write(activity, parseTS(t, "2024-09-01-10-00-00"), SystemActivitiesDir, "2024-09-01")
	require.NoError(t, err)
	_, err = w.Write(activity, parseTS(t, "2024-09-02-10-00-00"), SystemActivitiesDir, "2024-09-01")
	require.NoError(t, err)

	other := tabular.New("SourceSystem", "SourceSystemIdentifier", "ActivityDateTime")
	other.Append(tabular.Row{"SourceSystem": "Schoology", "SourceSystemIdentifier": "E2", "ActivityDateTime": "2024-09-02 08:00:00"})
	_, err = w.Write(other, parseTS(t, "2024-09-02-10-00-00"), SystemActivitiesDir, "2024-09-02")
	require.NoError(t, err)

	r := NewReader(root)
	got := r.AllSystemActivities()
	assert.Equal(t, 2, got.Len())
}

func TestExpandTemplate(t *testing.T) {
	assert.Equal(t, "section=S1/assignments", expandTemplate(AssignmentsDir, "S1"))
	assert.Equal(t, "section=S1/assignment=A1/submissions", expandTemplate(SubmissionsDir, "S1", "A1"))
	assert.Equal(t, "system-activities/date=2024-09-01", expandTemplate(SystemActivitiesDir, "2024-09-01"))
}
