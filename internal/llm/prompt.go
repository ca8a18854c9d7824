package llm

import (
	"strings"

	"github.com/joseph-ayodele/pdftables/constants"
)

// BuildPagePrompt composes the extraction instructions for one page: what to
// look for, per-column hints, data rules and the exact JSON shape to return.
func BuildPagePrompt(columns []string, instructions string) string {
	quoted := `"` + strings.Join(columns, `", "`) + `"`

	extra := strings.TrimSpace(instructions)
	if extra == "" {
		extra = "No additional context provided."
	}

	parts := []string{
		"CRITICAL: This appears to be a dense, multi-column scientific document with species/taxonomic data.",
		"Your task is to extract ALL tabular data that matches these columns: " + quoted,
		"",
		"DOCUMENT ANALYSIS INSTRUCTIONS:",
		"1. The page likely holds species or taxonomic records in a structured layout.",
		"2. Look for scientific names (Latin binomials), common names, location data and status codes.",
		"3. Data may be arranged in several columns across the page.",
		"4. A single record may wrap over more than one line.",
		"5. Ignore running headers, page numbers and section titles.",
		"6. Focus on the data entries, not on formatting elements.",
		"",
		"EXTRACTION STRATEGY:",
		"- Scan the ENTIRE page from top to bottom.",
		"- Look for repeating patterns that match the requested columns.",
		"- Scientific names usually follow the pattern \"Genus species\".",
		"- Location data may include counties, states or countries.",
		"- Status values may be coded (\"Ex\", \"Extinct\", \"Threatened\").",
		"",
		"SPECIFIC COLUMN MATCHING:",
		columnHints(columns),
		"",
		"DATA QUALITY RULES:",
		"1. Extract EVERY row with relevant data; completeness comes first.",
		"2. Join fields that span several lines.",
		"3. Preserve scientific naming exactly as printed.",
		"4. Keep location information as detailed as possible.",
		"5. Keep abbreviated status codes as they are.",
		"6. Use \"" + constants.MissingValue + "\" for empty or missing fields.",
		"7. Drop page headers, footers and other layout artifacts.",
		"",
		"CRITICAL OUTPUT FORMAT:",
		"Return a JSON object with this structure:",
		outputShape(columns),
		"",
		"ADDITIONAL CONTEXT:",
		extra,
		"",
		"IMPORTANT: Dense documents often hold many rows per page. Do not skip sections; if you find a tabular structure, extract ALL of its rows.",
	}
	return strings.Join(parts, "\n")
}

func columnHints(columns []string) string {
	lines := make([]string, 0, len(columns))
	for _, c := range columns {
		lines = append(lines, "- "+c+": "+constants.ClassifyColumn(c).Hint())
	}
	return strings.Join(lines, "\n")
}

func outputShape(columns []string) string {
	fields := make([]string, 0, len(columns))
	for _, c := range columns {
		fields = append(fields, `"`+c+`": "extracted_value"`)
	}
	row := "{" + strings.Join(fields, ", ") + "}"

	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString(`  "extracted_data": [` + "\n")
	b.WriteString("    " + row + ",\n")
	b.WriteString("    ... (continue for ALL data rows found)\n")
	b.WriteString("  ],\n")
	b.WriteString(`  "total_rows": <number of rows extracted>,` + "\n")
	b.WriteString(`  "extraction_notes": "observations about density or formatting problems",` + "\n")
	b.WriteString(`  "confidence_level": "high/medium/low"` + "\n")
	b.WriteString("}")
	return b.String()
}
