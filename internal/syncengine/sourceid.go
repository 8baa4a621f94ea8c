package syncengine

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Ed-Fi-Exchange-OSS/LMS-Toolkit-sub000/internal/tabular"
)

// SourceID concatenates a row's identity column values, sorted by column
// name, joined by "-". Column-name order, not value order: identity columns
// ("assignment_id", "section_id", "user_id") with values ("A1", "S1", "U1")
// yield "A1-S1-U1".
func SourceID(row tabular.Row, identityColumns []string) string {
	cols := append([]string(nil), identityColumns...)
	sort.Strings(cols)

	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = row[c]
	}
	return strings.Join(parts, "-")
}

// canonicalJSON serializes the payload with sorted keys so the same logical
// row always hashes identically across runs.
func canonicalJSON(row tabular.Row, columns []string) (string, error) {
	payload := make(map[string]string, len(columns))
	for _, c := range columns {
		payload[c] = row[c]
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// fingerprint is the 64-bit non-cryptographic row hash used as the change
// detector. Stored as a signed integer in SQLite.
func fingerprint(jsonStr string) int64 {
	return int64(xxhash.Sum64String(jsonStr))
}
