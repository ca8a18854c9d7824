package common

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// JobPreset is a reusable extraction setup read from YAML:
//
//	columns: [Species, Common Name, Status]
//	instructions: Ignore the index pages.
//	sample_pages: 3
type JobPreset struct {
	Columns           []string `yaml:"columns"`
	Instructions      string   `yaml:"instructions"`
	SamplePages       int      `yaml:"sample_pages"`
	StartPage         int      `yaml:"start_page"`
	IncludePageNumber bool     `yaml:"include_page_number"`
}

// LoadJobPreset reads and validates a preset file.
func LoadJobPreset(path string) (*JobPreset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	return ParseJobPreset(b)
}

// ParseJobPreset decodes preset YAML.
func ParseJobPreset(b []byte) (*JobPreset, error) {
	var p JobPreset
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, NewAppError(CodeInvalidInput, "decode preset", err)
	}
	p.Columns = NormalizeColumns(p.Columns)
	if err := ValidateColumns(p.Columns); err != nil {
		return nil, err
	}
	v := NewValidator().
		Field("sample_pages", p.SamplePages, NonNegative).
		Field("start_page", p.StartPage, NonNegative)
	if err := v.Error(); err != nil {
		return nil, err
	}
	return &p, nil
}
