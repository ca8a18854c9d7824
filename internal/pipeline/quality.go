package pipeline

import (
	"math"
	"strings"

	"github.com/joseph-ayodele/pdftables/internal/llm"
)

// ColumnQuality is how often a column carried a usable value.
type ColumnQuality struct {
	Column       string  `json:"column"`
	Filled       int     `json:"filled"`
	Total        int     `json:"total"`
	Completeness float64 `json:"completeness"` // percent, one decimal
}

// Quality summarizes the rows written for a run.
type Quality struct {
	Rows      int             `json:"rows"`
	Columns   []ColumnQuality `json:"columns"`
	SampleRow llm.Row         `json:"sample_row,omitempty"`
}

// Summary reports page-level yield.
type Summary struct {
	PagesProcessed   int     `json:"pages_processed"`
	PagesWithData    int     `json:"pages_with_data"`
	PagesWithoutData int     `json:"pages_without_data"`
	SuccessRate      float64 `json:"success_rate"`      // percent of processed pages that yielded rows
	AvgRowsPerPage   float64 `json:"avg_rows_per_page"` // over pages with data
}

// AssessQuality counts, per column, the rows whose value is present and not
// blank, "N/A", "n/a" or "nan".
func AssessQuality(rows []llm.Row, columns []string) Quality {
	q := Quality{Rows: len(rows), Columns: make([]ColumnQuality, 0, len(columns))}
	for _, c := range columns {
		cq := ColumnQuality{Column: c, Total: len(rows)}
		for _, r := range rows {
			if usable(r[c]) {
				cq.Filled++
			}
		}
		if cq.Total > 0 {
			cq.Completeness = round1(float64(cq.Filled) / float64(cq.Total) * 100)
		}
		q.Columns = append(q.Columns, cq)
	}
	if len(rows) > 0 {
		q.SampleRow = rows[0]
	}
	return q
}

func usable(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		s := strings.TrimSpace(t)
		return s != "" && s != "N/A" && s != "n/a" && s != "nan"
	default:
		return true
	}
}

// Summarize derives page statistics for a finished run.
func Summarize(processed, withData, rows int) Summary {
	s := Summary{
		PagesProcessed:   processed,
		PagesWithData:    withData,
		PagesWithoutData: processed - withData,
	}
	if processed > 0 {
		s.SuccessRate = round1(float64(withData) / float64(processed) * 100)
	}
	if withData > 0 {
		s.AvgRowsPerPage = round1(float64(rows) / float64(withData))
	}
	return s
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
