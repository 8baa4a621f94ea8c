package tabular

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicateOnKeepsFirst(t *testing.T) {
	tbl := New("Id", "Name")
	tbl.Append(Row{"Id": "1", "Name": "first"})
	tbl.Append(Row{"Id": "1", "Name": "second"})
	tbl.Append(Row{"Id": "2", "Name": "other"})

	out := tbl.DeduplicateOn([]string{"Id"})
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "first", out.Rows[0]["Name"])
}

func TestGroupByKeepsColumns(t *testing.T) {
	tbl := New("Section", "Value")
	tbl.Append(Row{"Section": "S1", "Value": "a"})
	tbl.Append(Row{"Section": "S2", "Value": "b"})
	tbl.Append(Row{"Section": "S1", "Value": "c"})

	groups := tbl.GroupBy("Section")
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups["S1"].Len())
	assert.Equal(t, tbl.Columns, groups["S1"].Columns)
}

func TestConcatUnionsColumns(t *testing.T) {
	a := New("Id", "Name")
	a.Append(Row{"Id": "1", "Name": "x"})
	b := New("Id", "Email")
	b.Append(Row{"Id": "2", "Email": "y@school.edu"})

	out := Concat(a, nil, b)
	assert.Equal(t, []string{"Id", "Name", "Email"}, out.Columns)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, "", out.Rows[1]["Name"])
}

func TestWriteCSVQuoting(t *testing.T) {
	tbl := New("Id", "Name")
	tbl.Append(Row{"Id": "1", "Name": `has "quotes", and commas`})

	var buf bytes.Buffer
	require.NoError(t, tbl.WriteCSV(&buf))

	parsed, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, parsed.Len())
	assert.Equal(t, `has "quotes", and commas`, parsed.Rows[0]["Name"])
}

func TestReadCSVEmptyInput(t *testing.T) {
	parsed, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, parsed.Len())
	assert.Empty(t, parsed.Columns)
}

func TestDeduplicateRows(t *testing.T) {
	tbl := New("Date", "User")
	tbl.Append(Row{"Date": "2024-09-01", "User": "U1"})
	tbl.Append(Row{"Date": "2024-09-01", "User": "U1"})
	tbl.Append(Row{"Date": "2024-09-01", "User": "U2"})

	assert.Equal(t, 2, tbl.DeduplicateRows().Len())
}
