package raster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

// Fitz renders pages in-process with MuPDF.
type Fitz struct {
	maxEdge int
	logger  *slog.Logger
}

func NewFitz(maxEdge int, logger *slog.Logger) *Fitz {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fitz{maxEdge: maxEdge, logger: logger}
}

func (f *Fitz) Rasterize(ctx context.Context, path string, dpi int) ([]PageImage, error) {
	start := time.Now()
	dpi = effectiveDPI(dpi)

	if _, err := os.Stat(path); err != nil {
		f.logger.Error("raster.open_failed", "path", path, "error", err)
		return nil, common.DocumentOpenError(path, err)
	}
	doc, err := fitz.New(path)
	if err != nil {
		f.logger.Error("raster.open_failed", "path", path, "error", err)
		return nil, common.DocumentOpenError(path, err)
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			f.logger.Warn("raster.close_failed", "path", path, "error", cerr)
		}
	}()

	total := doc.NumPage()
	f.logger.Info("raster.start", "path", path, "pages", total, "dpi", dpi, "backend", "fitz")

	pages := make([]PageImage, 0, total)
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			f.logger.Warn("raster.page_failed", "path", path, "page", i+1, "error", err)
			continue
		}
		png, w, h, err := encodePNG(img, f.maxEdge)
		if err != nil {
			f.logger.Warn("raster.page_failed", "path", path, "page", i+1, "error", fmt.Errorf("encode: %w", err))
			continue
		}
		pages = append(pages, PageImage{Number: i + 1, PNG: png, Width: w, Height: h})
	}

	f.logger.Info("raster.ok",
		"path", path,
		"pages", total,
		"rendered", len(pages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}
