// Package validate checks snapshot files against the UDM file contract:
// required timestamp columns present and formatted "YYYY-MM-DD HH:MM:SS".
// Findings are reported, never fatal; the downstream consumer decides.
package validate

import (
	"fmt"
	"regexp"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/model"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/pkg/errors"
)

type Validator struct {
	timestampRegex *regexp.Regexp
}

func NewValidator() *Validator {
	return &Validator{
		timestampRegex: regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`),
	}
}

// ValidateSnapshot reports every contract violation in the file. Empty
// placeholder tables pass: they carry no header by design.
func (v *Validator) ValidateSnapshot(file string, t *tabular.Table) []error {
	if len(t.Columns) == 0 && t.Len() == 0 {
		return nil
	}

	var problems []error
	for _, col := range model.SnapshotTimestampColumns {
		if !t.HasColumn(col) {
			problems = append(problems, errors.ValidationError{
				File:    file,
				Column:  col,
				Message: "required timestamp column missing",
			})
			continue
		}
		if rowNum, value, ok := v.firstMalformed(t, col); ok {
			problems = append(problems, errors.ValidationError{
				File:    file,
				Column:  col,
				Message: fmt.Sprintf("row %d: %q is not YYYY-MM-DD HH:MM:SS", rowNum, value),
			})
		}
	}
	return problems
}

// firstMalformed finds the first row whose value does not match the timestamp
// layout. SourceCreateDate/SourceLastModifiedDate may be blank when the
// vendor does not supply them.
func (v *Validator) firstMalformed(t *tabular.Table, col string) (int, string, bool) {
	sourceColumn := col == "SourceCreateDate" || col == "SourceLastModifiedDate"
	for i, row := range t.Rows {
		value := row[col]
		if value == "" && sourceColumn {
			continue
		}
		if !v.timestampRegex.MatchString(value) {
			return i + 1, value, true
		}
	}
	return 0, "", false
}
