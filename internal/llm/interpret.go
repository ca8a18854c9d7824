package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PageResponse is the decoded model answer. Only ExtractedData feeds the
// output; the other fields are logged.
type PageResponse struct {
	ExtractedData   []Row
	TotalRows       any
	ExtractionNotes string
	ConfidenceLevel string
	Dropped         int // extracted_data entries that were not objects
}

var (
	arrayPattern  = regexp.MustCompile(`(?s)\[.*?\]`)
	objectPattern = regexp.MustCompile(`\{[^{}]*\}`)

	errNotObject = errors.New("response is not a JSON object")
)

// StripFences removes a ```json or ``` fenced block around the payload. When
// the closing fence is missing everything after the opening one is kept.
func StripFences(raw string) string {
	text := raw
	for _, open := range []string{"```json", "```"} {
		i := strings.Index(text, open)
		if i < 0 {
			continue
		}
		body := text[i+len(open):]
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(text)
}

// ParsePageResponse decodes text that was already stripped of fences.
func ParsePageResponse(text string) (PageResponse, error) {
	var top any
	if err := json.Unmarshal([]byte(text), &top); err != nil {
		return PageResponse{}, fmt.Errorf("decode page response: %w", err)
	}
	obj, ok := top.(map[string]any)
	if !ok {
		return PageResponse{}, errNotObject
	}

	out := PageResponse{TotalRows: obj["total_rows"]}
	out.ExtractionNotes = textValue(obj["extraction_notes"])
	out.ConfidenceLevel = textValue(obj["confidence_level"])

	if items, ok := obj["extracted_data"].([]any); ok {
		out.ExtractedData, out.Dropped = objectsOf(items)
	}
	return out, nil
}

// RecoverRows is the lenient fallback for text that does not decode as a page
// response. It first looks for a bracketed array whose first element is an
// object and returns the first such array. Failing that, it collects flat
// objects that share at least one key with columns. It never fails; an empty
// result means nothing was recoverable.
func RecoverRows(text string, columns []string) []Row {
	for _, candidate := range arrayPattern.FindAllString(text, -1) {
		var items []any
		if err := json.Unmarshal([]byte(candidate), &items); err != nil || len(items) == 0 {
			continue
		}
		if _, ok := items[0].(map[string]any); !ok {
			continue
		}
		rows, _ := objectsOf(items)
		return rows
	}

	wanted := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		wanted[c] = struct{}{}
	}
	var rows []Row
	for _, candidate := range objectPattern.FindAllString(text, -1) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		for k := range obj {
			if _, ok := wanted[k]; ok {
				rows = append(rows, obj)
				break
			}
		}
	}
	return rows
}

func objectsOf(items []any) ([]Row, int) {
	rows := make([]Row, 0, len(items))
	dropped := 0
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			rows = append(rows, m)
			continue
		}
		dropped++
	}
	return rows, dropped
}

func textValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
