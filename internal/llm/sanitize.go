package llm

import (
	"strings"
)

// NormalizeRowKeys aligns row keys with the requested columns in place:
//   - keys are trimmed
//   - a key that differs from a column only by case or surrounding spaces is
//     renamed to the column, unless the row already has the exact column key
//
// Keys that match no column are left alone. Returns the renames applied as
// "from->to" strings for logging.
func NormalizeRowKeys(rows []Row, columns []string) []string {
	byFold := make(map[string]string, len(columns))
	for _, c := range columns {
		byFold[strings.ToLower(strings.TrimSpace(c))] = c
	}

	var renamed []string
	for _, row := range rows {
		for k, v := range row {
			col, ok := byFold[strings.ToLower(strings.TrimSpace(k))]
			if !ok || col == k {
				continue
			}
			if _, exists := row[col]; exists {
				continue
			}
			row[col] = v
			delete(row, k)
			renamed = append(renamed, k+"->"+col)
		}
	}
	return renamed
}
