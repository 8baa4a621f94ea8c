package syncengine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/syncdb"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

var testResource = model.Resource{
	Name:            "Users",
	IdentityColumns: []string{"SourceSystem", "SourceSystemIdentifier"},
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := syncdb.Open(filepath.Join(t.TempDir(), "sync.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func userTable(rows ...tabular.Row) *tabular.Table {
	t := tabular.New("SourceSystem", "SourceSystemIdentifier", "Name")
	for _, r := range rows {
		t.Append(r)
	}
	return t
}

func fixedClock(e *Engine, ts string) {
	parsed, _ := time.Parse(model.TimestampLayout, ts)
	e.now = func() time.Time { return parsed.UTC() }
}

func TestSyncNewRows(t *testing.T) {
	e := newTestEngine(t)
	fixedClock(e, "2024-09-01 10:00:00")

	out, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U2", "Name": "Ben"},
	))
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	assert.Contains(t, out.Columns, "CreateDate")
	assert.Contains(t, out.Columns, "LastModifiedDate")
	for _, row := range out.Rows {
		assert.Equal(t, "2024-09-01 10:00:00", row["CreateDate"])
		assert.Equal(t, "2024-09-01 10:00:00", row["LastModifiedDate"])
	}

	count, err := e.db.RowCount(context.Background(), testResource.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncUnchangedRowsKeepDates(t *testing.T) {
	e := newTestEngine(t)
	fresh := userTable(tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"})

	fixedClock(e, "2024-09-01 10:00:00")
	_, err := e.Sync(context.Background(), testResource, fresh)
	require.NoError(t, err)

	fixedClock(e, "2024-09-02 10:00:00")
	out, err := e.Sync(context.Background(), testResource, fresh)
	require.NoError(t, err)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "2024-09-01 10:00:00", out.Rows[0]["CreateDate"])
	assert.Equal(t, "2024-09-01 10:00:00", out.Rows[0]["LastModifiedDate"])
}

func TestSyncChangedRowPreservesCreateDate(t *testing.T) {
	e := newTestEngine(t)

	fixedClock(e, "2024-09-01 10:00:00")
	_, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
	))
	require.NoError(t, err)

	fixedClock(e, "2024-09-02 10:00:00")
	out, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana Maria"},
	))
	require.NoError(t, err)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "2024-09-01 10:00:00", out.Rows[0]["CreateDate"])
	assert.Equal(t, "2024-09-02 10:00:00", out.Rows[0]["LastModifiedDate"])

	count, err := e.db.RowCount(context.Background(), testResource.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncMissingRowsAreNotDeleted(t *testing.T) {
	e := newTestEngine(t)
	fixedClock(e, "2024-09-01 10:00:00")

	_, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U2", "Name": "Ben"},
	))
	require.NoError(t, err)

	fixedClock(e, "2024-09-02 10:00:00")
	out, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
	))
	require.NoError(t, err)

	// Output mirrors the fetch, but the missing row stays in the main table.
	assert.Equal(t, 1, out.Len())
	count, err := e.db.RowCount(context.Background(), testResource.Name)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncEmptyFetchLeavesMainTableAlone(t *testing.T) {
	e := newTestEngine(t)
	fixedClock(e, "2024-09-01 10:00:00")

	_, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
	))
	require.NoError(t, err)

	out, err := e.Sync(context.Background(), testResource, userTable())
	require.NoError(t, err)

	assert.Equal(t, 0, out.Len())
	count, err := e.db.RowCount(context.Background(), testResource.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncDeduplicatesFetchedRows(t *testing.T) {
	e := newTestEngine(t)
	fixedClock(e, "2024-09-01 10:00:00")

	out, err := e.Sync(context.Background(), testResource, userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana (duplicate)"},
	))
	require.NoError(t, err)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, "Ana", out.Rows[0]["Name"])
}

func TestSyncIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	fresh := userTable(
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U1", "Name": "Ana"},
		tabular.Row{"SourceSystem": "Canvas", "SourceSystemIdentifier": "U2", "Name": "Ben"},
	)

	fixedClock(e, "2024-09-01 10:00:00")
	first, err := e.Sync(context.Background(), testResource, fresh)
	require.NoError(t, err)

	fixedClock(e, "2024-09-05 10:00:00")
	second, err := e.Sync(context.Background(), testResource, fresh)
	require.NoError(t, err)

	assert.Equal(t, first.Rows, second.Rows)
}

func TestSyncValidatesInput(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Sync(context.Background(), model.Resource{Name: "Bad"}, userTable())
	assert.ErrorIs(t, err, errors.ErrEmptyIdentity)

	missing := tabular.New("SourceSystem")
	_, err = e.Sync(context.Background(), testResource, missing)
	assert.ErrorIs(t, err, errors.ErrMissingColumn)
}

func TestSourceIDSortsColumnNames(t *testing.T) {
	row := tabular.Row{
		"SectionId":    "S1",
		"AssignmentId": "A1",
		"UserId":       "U1",
	}
	// Values are joined in column-name order, not listing order.
	got := SourceID(row, []string{"UserId", "SectionId", "AssignmentId"})
	assert.Equal(t, "A1-S1-U1", got)
}

func TestFingerprint(t *testing.T) {
	a, err := canonicalJSON(tabular.Row{"B": "2", "A": "1"}, []string{"A", "B"})
	require.NoError(t, err)
	b, err := canonicalJSON(tabular.Row{"A": "1", "B": "2"}, []string{"B", "A"})
	require.NoError(t, err)

	// Canonical form is independent of column order, so hashes agree.
	assert.Equal(t, a, b)
	assert.Equal(t, fingerprint(a), fingerprint(b))

	c, err := canonicalJSON(tabular.Row{"A": "1", "B": "changed"}, []string{"A", "B"})
	require.NoError(t, err)
	assert.NotEqual(t, fingerprint(a), fingerprint(c))
}
