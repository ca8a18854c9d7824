// Package raster turns PDF pages into in-memory PNG images.
package raster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

// DefaultDPI is the resolution used when the caller passes a non-positive value.
const DefaultDPI = 200

// PageImage is one rendered page. Number is 1-based and stable even when
// neighbouring pages failed to render.
type PageImage struct {
	Number int
	PNG    []byte
	Width  int
	Height int
}

// Rasterizer renders every page of a document. A failure to open the document
// is returned as an error matching common.ErrDocumentOpen; a failure on a
// single page is logged and the page is left out.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string, dpi int) ([]PageImage, error)
}

// Config selects a backend.
type Config struct {
	Backend  string // "fitz" (default) or "pdftoppm"
	MaxEdge  int    // longest side in pixels after rendering, 0 = unchanged
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
}

// ConfigFromCommon maps application settings to a raster Config.
func ConfigFromCommon(c common.RenderConfig) Config {
	return Config{Backend: c.Rasterizer, MaxEdge: c.MaxEdge, Pdftoppm: c.Pdftoppm}
}

// New returns the configured backend.
func New(cfg Config, logger *slog.Logger) (Rasterizer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "fitz":
		return NewFitz(cfg.MaxEdge, logger), nil
	case "pdftoppm":
		return NewPdftoppm(cfg.Pdftoppm, cfg.MaxEdge, nil, logger), nil
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown rasterizer %q", cfg.Backend), common.ErrConfig)
	}
}

func effectiveDPI(dpi int) int {
	if dpi <= 0 {
		return DefaultDPI
	}
	return dpi
}
