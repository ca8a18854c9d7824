package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/pdftables/constants"
)

// DocumentID is the identity of a document: the file name without extension.
func DocumentID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputPath is <dir>/<stem>_<suffix>_enhanced.xlsx where suffix abbreviates
// the first three columns.
func OutputPath(dir, pdfPath string, columns []string) string {
	name := DocumentID(pdfPath)
	if suffix := columnSuffix(columns); suffix != "" {
		name += "_" + suffix
	}
	return filepath.Join(dir, name+constants.OutputSuffix)
}

func columnSuffix(columns []string) string {
	if len(columns) > 3 {
		columns = columns[:3]
	}
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		r := []rune(strings.ReplaceAll(c, " ", ""))
		if len(r) > 3 {
			r = r[:3]
		}
		parts = append(parts, string(r))
	}
	return strings.Join(parts, "_")
}
