// Package tabular holds the string-typed tabular value passed between the
// vendor fetchers, the sync engine, and the CSV snapshot layer.
package tabular

import (
	"encoding/csv"
	"io"
	"strings"
)

type Row map[string]string

// Table is an ordered set of named string columns plus rows. Cells absent
// from a row read as "".
type Table struct {
	Columns []string
	Rows    []Row
}

func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

func (t *Table) Append(r Row) {
	t.Rows = append(t.Rows, r)
}

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends a column to the schema if it is not already present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// DeduplicateOn returns a copy keeping the first row seen for each distinct
// combination of the given columns. Some vendors emit a row twice, e.g. a
// Canvas enrollment visible through both the root and a sub-account.
func (t *Table) DeduplicateOn(columns []string) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	seen := make(map[string]struct{}, len(t.Rows))
	for _, r := range t.Rows {
		key := rowKey(r, columns)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// DeduplicateRows removes rows equal on every column, keeping the first.
func (t *Table) DeduplicateRows() *Table {
	return t.DeduplicateOn(t.Columns)
}

// GroupBy splits the table by the values of one column. Each group keeps the
// full column set.
func (t *Table) GroupBy(column string) map[string]*Table {
	groups := make(map[string]*Table)
	for _, r := range t.Rows {
		key := r[column]
		g, ok := groups[key]
		if !ok {
			g = &Table{Columns: append([]string(nil), t.Columns...)}
			groups[key] = g
		}
		g.Rows = append(g.Rows, r)
	}
	return groups
}

// Concat unions tables into one. The column set is the union of all inputs in
// first-seen order.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			out.AddColumn(c)
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	return out
}

// WriteCSV writes the table with a header row, RFC 4180 quoting, no index
// column.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			record[i] = r[c]
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a headered CSV. A zero-byte input (the empty placeholder
// files the snapshot writer emits for sections with no data) yields an empty
// table with no columns and no error.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &Table{Columns: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(Row, len(header))
		for i, c := range header {
			if i < len(record) {
				row[c] = record[i]
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func rowKey(r Row, columns []string) string {
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(r[c])
	}
	return b.String()
}
