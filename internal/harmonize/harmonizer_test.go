package harmonize

import (
	"context"
	"database/sql"
	stderrors "errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestHarmonizer(t *testing.T) *Harmonizer {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "warehouse.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestStepsRunInOrderAndAbortOnFailure(t *testing.T) {
	h := newTestHarmonizer(t)
	boom := stderrors.New("boom")

	var executed []string
	record := func(name string, err error) step {
		return step{name, func(context.Context, *sql.Tx) error {
			executed = append(executed, name)
			return err
		}}
	}

	err := h.runSteps(context.Background(), []step{
		record("first", nil),
		record("second", boom),
		record("third", nil),
	})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "second")
	// The failing step stops the sequence; later steps never run.
	assert.Equal(t, []string{"first", "second"}, executed)
}

func TestCompletedStepsStayCommitted(t *testing.T) {
	h := newTestHarmonizer(t)
	boom := stderrors.New("boom")

	err := h.runSteps(context.Background(), []step{
		{"create", func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `CREATE TABLE marker (id INTEGER)`)
			return err
		}},
		{"fail", func(context.Context, *sql.Tx) error { return boom }},
	})
	require.ErrorIs(t, err, boom)

	// The table from the first step survives the second step's failure.
	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM marker`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestFailedStepRollsBack(t *testing.T) {
	h := newTestHarmonizer(t)
	boom := stderrors.New("boom")

	_, err := h.db.Exec(`CREATE TABLE marker (id INTEGER)`)
	require.NoError(t, err)

	err = h.runSteps(context.Background(), []step{
		{"partial", func(ctx context.Context, tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO marker VALUES (1)`); err != nil {
				return err
			}
			return boom
		}},
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, h.db.QueryRow(`SELECT COUNT(*) FROM marker`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestResolveMatchesSkipsAmbiguity(t *testing.T) {
	h := newTestHarmonizer(t)

	matches := []userMatch{
		{lmsUserID: 1, sourceID: "u1", studentID: "student-a"},
		// LMS user 2 matches two different students.
		{lmsUserID: 2, sourceID: "u2", studentID: "student-b"},
		{lmsUserID: 2, sourceID: "u2", studentID: "student-c"},
		// Student d matches two different LMS users.
		{lmsUserID: 3, sourceID: "u3", studentID: "student-d"},
		{lmsUserID: 4, sourceID: "u4", studentID: "student-d"},
	}

	out := h.resolveMatches("Canvas", matches)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].lmsUserID)
	assert.Equal(t, "student-a", out[0].studentID)
}

func TestResolveMatchesDuplicatePairIsUnambiguous(t *testing.T) {
	h := newTestHarmonizer(t)

	// The same pair reported twice (two email records) is still one match.
	out := h.resolveMatches("Google", []userMatch{
		{lmsUserID: 1, sourceID: "u1", studentID: "student-a"},
		{lmsUserID: 1, sourceID: "u1", studentID: "student-a"},
	})
	require.Len(t, out, 1)
}

func TestDescriptorNamespaces(t *testing.T) {
	assert.Equal(t, "uri://ed-fi.org/edfilms/AssignmentCategoryDescriptor/Schoology",
		assignmentCategoryNamespace("Schoology"))
	assert.Equal(t, "uri://ed-fi.org/edfilms/SubmissionStatusDescriptor/Canvas",
		submissionStatusNamespace("Canvas"))
	assert.Equal(t, "uri://ed-fi.org/edfilms/LMSSourceSystemDescriptor",
		sourceSystemDescriptorNamespace)
	assert.Equal(t, "uri://ed-fi.org/edfilms/Google", sourceNamespace("Google"))
}
