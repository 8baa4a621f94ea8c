package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

// fieldMap pairs a UDM column with the vendor field it is renamed from.
type fieldMap [][2]string

// timestamp-valued UDM columns get normalized to "2006-01-02 15:04:05" UTC.
var timestampColumns = map[string]bool{
	"SourceCreateDate":       true,
	"SourceLastModifiedDate": true,
	"DueDateTime":            true,
	"StartDateTime":          true,
	"EndDateTime":            true,
	"SubmissionDateTime":     true,
	"ActivityDateTime":       true,
	"EventDateTime":          true,
}

// mapTable applies the UDM column renames to raw vendor rows and attaches
// constant-valued columns (SourceSystem, parent identifiers).
func mapTable(raw []map[string]interface{}, fields fieldMap, constants map[string]string) *tabular.Table {
	columns := make([]string, 0, len(fields)+len(constants))
	for _, f := range fields {
		columns = append(columns, f[0])
	}
	constantColumns := make([]string, 0, len(constants))
	for c := range constants {
		constantColumns = append(constantColumns, c)
	}
	// Deterministic column order regardless of map iteration.
	sort.Strings(constantColumns)
	columns = append(columns, constantColumns...)
	columns = withSourceDates(columns)

	out := tabular.New(columns...)
	for _, rawRow := range raw {
		row := make(tabular.Row, len(columns))
		for _, f := range fields {
			value := stringify(lookup(rawRow, f[1]))
			if timestampColumns[f[0]] {
				value = normalizeTimestamp(value)
			}
			row[f[0]] = value
		}
		for c, v := range constants {
			row[c] = v
		}
		out.Append(row)
	}
	return out
}

// withSourceDates appends the two Source* timestamp columns a vendor did not
// map. The file contract requires them on every resource; blank values are
// allowed when the vendor reports no record timestamps.
func withSourceDates(columns []string) []string {
	for _, required := range []string{"SourceCreateDate", "SourceLastModifiedDate"} {
		present := false
		for _, c := range columns {
			if c == required {
				present = true
				break
			}
		}
		if !present {
			columns = append(columns, required)
		}
	}
	return columns
}

// lookup resolves a vendor field, following "a.b" into nested objects.
func lookup(row map[string]interface{}, field string) interface{} {
	parts := strings.Split(field, ".")
	var current interface{} = row
	for _, p := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[p]
	}
	return current
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// normalizeTimestamp converts vendor timestamps (RFC 3339 or epoch seconds)
// to the snapshot layout in UTC. Unparseable values pass through for the
// validator to flag.
func normalizeTimestamp(value string) string {
	if value == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", model.TimestampLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC().Format(model.TimestampLayout)
		}
	}
	if epoch, err := json.Number(value).Int64(); err == nil && epoch > 0 {
		return time.Unix(epoch, 0).UTC().Format(model.TimestampLayout)
	}
	return value
}
