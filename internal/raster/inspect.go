package raster

import (
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Validate checks that path is a structurally readable PDF without rendering it.
func Validate(path string) error {
	if _, err := os.Stat(path); err != nil {
		return common.DocumentOpenError(path, err)
	}
	if err := api.ValidateFile(path, relaxedConfig()); err != nil {
		return common.DocumentOpenError(path, err)
	}
	return nil
}

// PageCount returns the number of pages in the document.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, common.DocumentOpenError(path, err)
	}
	defer f.Close()
	n, err := api.PageCount(f, relaxedConfig())
	if err != nil {
		return 0, common.DocumentOpenError(path, err)
	}
	return n, nil
}
