package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildPageJSONSchema returns a JSON-Schema (draft 2020-12 subset) for a page
// response. Rows may carry extra keys; only the requested columns are typed.
func BuildPageJSONSchema(columns []string) map[string]any {
	rowProps := make(map[string]any, len(columns))
	for _, c := range columns {
		rowProps[c] = map[string]any{"type": []string{"string", "number", "boolean", "null"}}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"extracted_data": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": rowProps,
				},
			},
			"total_rows":       map[string]any{"type": []string{"integer", "string"}},
			"extraction_notes": map[string]any{"type": "string"},
			"confidence_level": map[string]any{"type": "string"},
		},
		"required": []string{"extracted_data"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
