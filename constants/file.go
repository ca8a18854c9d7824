package constants

import (
	"path/filepath"
	"strings"
)

// AllowedExtensions holds the file extensions accepted for extraction.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether the file name carries a .pdf extension (any case).
func IsPDF(name string) bool {
	_, ok := AllowedExtensions[NormalizeExt(filepath.Ext(name))]
	return ok
}

const (
	// PageNumberColumn is the transient provenance attribute added to every row.
	PageNumberColumn = "_page_number"

	// MissingValue fills cells with no extracted data.
	MissingValue = "N/A"

	// SheetName is the single worksheet written per run.
	SheetName = "Extracted_Data"

	// CheckpointSuffix is appended to the document id to form checkpoint file names.
	CheckpointSuffix = "_progress.json"

	// OutputSuffix is appended to output workbook names.
	OutputSuffix = "_enhanced.xlsx"
)
