package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/validate"
)

func TestMapTableRenamesAndConstants(t *testing.T) {
	raw := []map[string]interface{}{
		{
			"id":    json.Number("42"),
			"email": "ana@school.edu",
			"links": map[string]interface{}{"user": json.Number("7")},
		},
	}

	got := mapTable(raw, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"EmailAddress", "email"},
		{"LMSUserSourceSystemIdentifier", "links.user"},
	}, map[string]string{
		"SourceSystem": "Canvas",
	})

	require.Equal(t, 1, got.Len())
	row := got.Rows[0]
	assert.Equal(t, "42", row["SourceSystemIdentifier"])
	assert.Equal(t, "ana@school.edu", row["EmailAddress"])
	assert.Equal(t, "7", row["LMSUserSourceSystemIdentifier"])
	assert.Equal(t, "Canvas", row["SourceSystem"])
	assert.Equal(t, []string{
		"SourceSystemIdentifier", "EmailAddress", "LMSUserSourceSystemIdentifier",
		"SourceSystem", "SourceCreateDate", "SourceLastModifiedDate",
	}, got.Columns)
}

// Vendors without record timestamps (Schoology users, Google users) still
// have to produce files that satisfy the timestamp-column contract.
func TestMapTableAlwaysCarriesSourceDateColumns(t *testing.T) {
	got := mapTable([]map[string]interface{}{
		{"uid": json.Number("9"), "name_display": "Ana"},
	}, fieldMap{
		{"SourceSystemIdentifier", "uid"},
		{"Name", "name_display"},
	}, map[string]string{
		"SourceSystem": "Schoology",
	})

	require.True(t, got.HasColumn("SourceCreateDate"))
	require.True(t, got.HasColumn("SourceLastModifiedDate"))
	assert.Equal(t, "", got.Rows[0]["SourceCreateDate"])
	assert.Equal(t, "", got.Rows[0]["SourceLastModifiedDate"])

	// With the engine's date columns attached, the snapshot validator is clean.
	got.AddColumn("CreateDate")
	got.AddColumn("LastModifiedDate")
	for _, row := range got.Rows {
		row["CreateDate"] = "2024-09-01 10:30:00"
		row["LastModifiedDate"] = "2024-09-01 10:30:00"
	}
	assert.Empty(t, validate.NewValidator().ValidateSnapshot("users.csv", got))
}

// Mapped Source* columns keep their place; nothing gets appended twice.
func TestMapTableKeepsMappedSourceDates(t *testing.T) {
	got := mapTable([]map[string]interface{}{
		{"id": json.Number("1"), "created_at": "2024-09-01T10:30:00Z"},
	}, fieldMap{
		{"SourceSystemIdentifier", "id"},
		{"SourceCreateDate", "created_at"},
		{"SourceLastModifiedDate", "updated_at"},
	}, nil)

	assert.Equal(t, []string{"SourceSystemIdentifier", "SourceCreateDate", "SourceLastModifiedDate"}, got.Columns)
	assert.Equal(t, "2024-09-01 10:30:00", got.Rows[0]["SourceCreateDate"])
}

func TestMapTableMissingFieldIsBlank(t *testing.T) {
	got := mapTable([]map[string]interface{}{{}}, fieldMap{
		{"Name", "sortable_name"},
	}, nil)
	assert.Equal(t, "", got.Rows[0]["Name"])
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"rfc3339", "2024-09-01T10:30:00Z", "2024-09-01 10:30:00"},
		{"rfc3339 with offset", "2024-09-01T12:30:00+02:00", "2024-09-01 10:30:00"},
		{"epoch seconds", "1725186600", "2024-09-01 10:30:00"},
		{"date only", "2024-09-01", "2024-09-01 00:00:00"},
		{"already normalized", "2024-09-01 10:30:00", "2024-09-01 10:30:00"},
		{"empty", "", ""},
		{"unparseable passes through", "not-a-date", "not-a-date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTimestamp(tt.input))
		})
	}
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "12.5", stringify(json.Number("12.5")))
	assert.Equal(t, "true", stringify(true))
	assert.Equal(t, "plain", stringify("plain"))
}
