package validate

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

func validTable() *tabular.Table {
	t := tabular.New("SourceSystem", "SourceSystemIdentifier",
		"CreateDate", "LastModifiedDate", "SourceCreateDate", "SourceLastModifiedDate")
	t.Append(tabular.Row{
		"SourceSystem":           "Canvas",
		"SourceSystemIdentifier": "U1",
		"CreateDate":             "2024-09-01 10:00:00",
		"LastModifiedDate":       "2024-09-01 10:00:00",
		"SourceCreateDate":       "2024-08-15 08:00:00",
		"SourceLastModifiedDate": "",
	})
	return t
}

func TestValidSnapshotPasses(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.ValidateSnapshot("users.csv", validTable()))
}

func TestEmptyPlaceholderPasses(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.ValidateSnapshot("grades.csv", &tabular.Table{}))
}

func TestMissingTimestampColumn(t *testing.T) {
	v := NewValidator()
	tbl := tabular.New("SourceSystem", "CreateDate", "LastModifiedDate", "SourceCreateDate")
	tbl.Append(tabular.Row{
		"CreateDate":       "2024-09-01 10:00:00",
		"LastModifiedDate": "2024-09-01 10:00:00",
		"SourceCreateDate": "",
	})

	problems := v.ValidateSnapshot("users.csv", tbl)
	require.Len(t, problems, 1)
	assert.True(t, stderrors.Is(problems[0], errors.ErrSchemaValidation))

	var ve errors.ValidationError
	require.True(t, stderrors.As(problems[0], &ve))
	assert.Equal(t, "SourceLastModifiedDate", ve.Column)
}

func TestMalformedTimestampReported(t *testing.T) {
	v := NewValidator()
	tbl := validTable()
	tbl.Rows[0]["CreateDate"] = "2024-09-01T10:00:00Z"

	problems := v.ValidateSnapshot("users.csv", tbl)
	require.Len(t, problems, 1)

	var ve errors.ValidationError
	require.True(t, stderrors.As(problems[0], &ve))
	assert.Equal(t, "CreateDate", ve.Column)
	assert.Contains(t, ve.Message, "row 1")
}

func TestBlankRequiredTimestampReported(t *testing.T) {
	v := NewValidator()
	tbl := validTable()
	tbl.Rows[0]["LastModifiedDate"] = ""

	problems := v.ValidateSnapshot("users.csv", tbl)
	require.Len(t, problems, 1)
}
