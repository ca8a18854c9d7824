package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/pdftables/constants"
	"github.com/joseph-ayodele/pdftables/internal/llm"
)

// BuildTable projects rows onto columns. The first row is the header; every
// data row has exactly len(columns) cells in column order.
func BuildTable(rows []llm.Row, columns []string) [][]string {
	table := make([][]string, 0, len(rows)+1)
	header := make([]string, len(columns))
	copy(header, columns)
	table = append(table, header)

	for _, r := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			v, ok := r[c]
			if !ok {
				cells[i] = constants.MissingValue
				continue
			}
			cells[i] = normalizeCell(CellText(v))
		}
		table = append(table, cells)
	}
	return table
}

// CellText renders a row value as cell text.
func CellText(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "nan", "None", "null":
		return constants.MissingValue
	}
	return s
}

// columnWidths returns min(max(longest+3, 15), 60) per column, measured over
// the header and every cell.
func columnWidths(table [][]string) []float64 {
	if len(table) == 0 {
		return nil
	}
	widths := make([]float64, len(table[0]))
	for i := range widths {
		longest := 0
		for _, row := range table {
			if n := len([]rune(row[i])); n > longest {
				longest = n
			}
		}
		w := longest + 3
		if w < 15 {
			w = 15
		}
		if w > 60 {
			w = 60
		}
		widths[i] = float64(w)
	}
	return widths
}
