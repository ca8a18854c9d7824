package raster

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

// Pdftoppm renders pages with the poppler command line tool, one process per
// page so a broken page only costs that page.
type Pdftoppm struct {
	bin       string
	maxEdge   int
	runner    Runner
	pageCount func(path string) (int, error)
	logger    *slog.Logger
}

// NewPdftoppm builds the backend. A nil runner executes real processes.
func NewPdftoppm(bin string, maxEdge int, runner Runner, logger *slog.Logger) *Pdftoppm {
	if logger == nil {
		logger = slog.Default()
	}
	if bin == "" {
		bin = "pdftoppm"
	}
	if runner == nil {
		runner = execRunner{logger: logger}
	}
	return &Pdftoppm{bin: bin, maxEdge: maxEdge, runner: runner, pageCount: PageCount, logger: logger}
}

func (p *Pdftoppm) Rasterize(ctx context.Context, path string, dpi int) ([]PageImage, error) {
	start := time.Now()
	dpi = effectiveDPI(dpi)

	total, err := p.pageCount(path)
	if err != nil {
		p.logger.Error("raster.open_failed", "path", path, "error", err)
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "pdftables-pp-*")
	if err != nil {
		return nil, common.NewAppError(common.CodeRasterize, "create temp dir", common.ErrRasterize)
	}
	defer func(dir string) {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn("raster.cleanup_failed", "dir", dir, "error", err)
		}
	}(tmpDir)

	p.logger.Info("raster.start", "path", path, "pages", total, "dpi", dpi, "backend", "pdftoppm")

	pages := make([]PageImage, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := p.renderPage(ctx, path, tmpDir, n, dpi)
		if err != nil {
			p.logger.Warn("raster.page_failed", "path", path, "page", n, "error", err)
			continue
		}
		pages = append(pages, page)
	}

	p.logger.Info("raster.ok",
		"path", path,
		"pages", total,
		"rendered", len(pages),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return pages, nil
}

func (p *Pdftoppm) renderPage(ctx context.Context, path, tmpDir string, n, dpi int) (PageImage, error) {
	prefix := filepath.Join(tmpDir, fmt.Sprintf("page-%d", n))
	num := strconv.Itoa(n)
	// pdftoppm -r 200 -png -f n -l n -singlefile <in.pdf> <tmp/page-n>
	_, errb, err := p.runner.Run(ctx, p.bin, "-r", strconv.Itoa(dpi), "-png", "-f", num, "-l", num, "-singlefile", path, prefix)
	if err != nil {
		return PageImage{}, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}
	out := prefix + ".png"
	defer os.Remove(out)

	raw, err := os.ReadFile(out)
	if err != nil {
		return PageImage{}, fmt.Errorf("read rendered page: %w", err)
	}
	img, err := decodeImage(raw)
	if err != nil {
		return PageImage{}, fmt.Errorf("decode rendered page: %w", err)
	}
	png, w, h, err := encodePNG(img, p.maxEdge)
	if err != nil {
		return PageImage{}, fmt.Errorf("encode: %w", err)
	}
	return PageImage{Number: n, PNG: png, Width: w, Height: h}, nil
}
