package constants

import (
	"strings"
)

// ColumnCategory is the kind of data a requested column is expected to hold.
// It only drives the hint text sent to the model.
type ColumnCategory string

const (
	ScientificName ColumnCategory = "ScientificName"
	CommonName     ColumnCategory = "CommonName"
	Location       ColumnCategory = "Location"
	Temporal       ColumnCategory = "Temporal"
	Conservation   ColumnCategory = "Conservation"
	Taxonomy       ColumnCategory = "Taxonomy"
	Generic        ColumnCategory = "Generic"
)

// Order matters: the first category with a matching keyword wins, so
// "Common Name" is treated as a scientific name column because of "name".
var categoryKeywords = []struct {
	category ColumnCategory
	keywords []string
}{
	{ScientificName, []string{"species", "scientific", "name", "binomial", "taxa"}},
	{CommonName, []string{"common", "vernacular", "english"}},
	{Location, []string{"location", "locality", "place", "county", "state", "where", "found", "range"}},
	{Temporal, []string{"date", "year", "time", "collected", "observed", "when"}},
	{Conservation, []string{"status", "condition", "conservation", "threat", "endangered", "extinct"}},
	{Taxonomy, []string{"family", "group", "category", "class", "order"}},
}

var categoryHints = map[ColumnCategory]string{
	ScientificName: "Scientific binomial names (e.g., 'Quercus alba', 'Homo sapiens'); look for a Latin genus followed by a species epithet",
	CommonName:     "Common English names (e.g., 'White Oak', 'American Robin')",
	Location:       "Geographic information (counties, states, countries, specific localities)",
	Temporal:       "Temporal information (dates, years, time periods)",
	Conservation:   "Conservation or threat status (e.g., 'Extinct', 'Endangered', 'Ex', 'En', status codes)",
	Taxonomy:       "Taxonomic classification (Family, Order, Class names)",
	Generic:        "Data that logically corresponds to this column name",
}

// ClassifyColumn maps a column name to its category by case-insensitive
// substring match. Unknown names fall back to Generic.
func ClassifyColumn(column string) ColumnCategory {
	normalized := strings.ToLower(strings.TrimSpace(column))
	if normalized == "" {
		return Generic
	}
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(normalized, kw) {
				return ck.category
			}
		}
	}
	return Generic
}

// Hint returns the prompt hint for the category.
func (c ColumnCategory) Hint() string {
	if h, ok := categoryHints[c]; ok {
		return h
	}
	return categoryHints[Generic]
}

// SuggestedColumns is offered by the interactive batch setup.
var SuggestedColumns = []string{"Species", "Common Name", "Location", "Status", "Date"}
