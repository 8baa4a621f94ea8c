package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/csvio"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

func contractTable() *tabular.Table {
	t := tabular.New("SourceSystemIdentifier", "SourceSystem",
		"CreateDate", "LastModifiedDate", "SourceCreateDate", "SourceLastModifiedDate")
	t.Append(tabular.Row{
		"SourceSystemIdentifier": "1",
		"SourceSystem":           "Canvas",
		"CreateDate":             "2024-09-01 10:30:00",
		"LastModifiedDate":       "2024-09-01 10:30:00",
	})
	return t
}

// Aggregated tables without a single-file template are validated too, and
// problems carry the table name.
func TestValidateRunChecksEveryTable(t *testing.T) {
	l := New(nil)
	r := csvio.NewReader(t.TempDir())

	bad := tabular.New("SourceSystemIdentifier")
	bad.Append(tabular.Row{"SourceSystemIdentifier": "sub-1"})

	problems := l.validateRun(r, []snapshotTable{
		{name: "users", template: csvio.UsersDir, table: contractTable()},
		{name: "sections", template: csvio.SectionsDir, table: contractTable()},
		{name: "assignments", table: contractTable()},
		{name: "submissions", table: bad},
	})

	require.NotEmpty(t, problems)
	for _, p := range problems {
		var v errors.ValidationError
		require.ErrorAs(t, p, &v)
		assert.Equal(t, "submissions", v.File)
	}
}

func TestValidateRunCleanSnapshot(t *testing.T) {
	l := New(nil)
	r := csvio.NewReader(t.TempDir())

	problems := l.validateRun(r, []snapshotTable{
		{name: "users", template: csvio.UsersDir, table: contractTable()},
		{name: "assignments", table: &tabular.Table{}},
	})
	assert.Empty(t, problems)
}
