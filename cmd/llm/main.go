// Command llm runs the extractor on a single page, optionally several
// times, to compare model answers while tuning prompts.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/llm"
	"github.com/joseph-ayodele/pdftables/internal/llm/openai"
	"github.com/joseph-ayodele/pdftables/internal/raster"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 4 {
		logger.Error("usage: llm <pdf> <page> <col1,col2,...> [times]")
		os.Exit(2)
	}
	pdfPath := os.Args[1]
	page, err := strconv.Atoi(os.Args[2])
	if err != nil || page < 1 {
		logger.Error("invalid page (1-based)", "arg", os.Args[2])
		os.Exit(2)
	}
	columns := common.NormalizeColumns(strings.Split(os.Args[3], ","))
	if err := common.ValidateColumns(columns); err != nil {
		logger.Error("invalid columns", "error", err)
		os.Exit(2)
	}
	times := 1
	if len(os.Args) >= 5 {
		if n, err := strconv.Atoi(os.Args[4]); err == nil && n > 0 {
			times = n
		}
	}

	common.LoadDotEnv()
	cfg := common.LoadConfig()
	if cfg.LLM.APIKey == "" {
		logger.Error("OPENAI_API_KEY env var is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	r, err := raster.New(raster.ConfigFromCommon(cfg.Render), logger)
	if err != nil {
		logger.Error("rasterizer", "error", err)
		os.Exit(1)
	}
	pages, err := r.Rasterize(ctx, pdfPath, cfg.Render.DPI)
	if err != nil {
		logger.Error("rasterize", "pdf", pdfPath, "error", err)
		os.Exit(1)
	}
	var img *raster.PageImage
	for i := range pages {
		if pages[i].Number == page {
			img = &pages[i]
			break
		}
	}
	if img == nil {
		logger.Error("page not rendered", "page", page, "pages", len(pages))
		os.Exit(1)
	}

	model := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	x := llm.NewExtractor(model, logger,
		llm.WithPageTimeout(cfg.LLM.PageTimeout),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i := 1; i <= times; i++ {
		start := time.Now()
		res, err := x.ExtractPage(ctx, llm.PageRequest{
			ImagePNG:   img.PNG,
			Columns:    columns,
			PageNumber: page,
		})
		if err != nil {
			logger.Error("extract failed", "iter", i, "error", err)
			os.Exit(1)
		}
		logger.Info("extract ok",
			"iter", i,
			"rows", len(res.Rows),
			"recovered", res.Recovered,
			"attempts", res.Attempts,
			"confidence", res.Confidence,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		_ = enc.Encode(res.Rows)
	}
}
