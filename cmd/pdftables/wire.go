package main

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/pdftables/internal/checkpoint"
	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/export"
	"github.com/joseph-ayodele/pdftables/internal/llm"
	"github.com/joseph-ayodele/pdftables/internal/llm/openai"
	"github.com/joseph-ayodele/pdftables/internal/llm/vertex"
	"github.com/joseph-ayodele/pdftables/internal/pipeline"
	"github.com/joseph-ayodele/pdftables/internal/raster"
	"github.com/joseph-ayodele/pdftables/internal/repository"
)

// app is the wired extraction stack shared by batch and serve.
type app struct {
	pipeline *pipeline.Pipeline
	runs     repository.RunRepository
	model    string
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	rasterizer, err := raster.New(raster.ConfigFromCommon(cfg.Render), logger)
	if err != nil {
		return nil, err
	}

	model, closeModel, err := newVisionModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeModel)
	a.model = model.Name()

	policy := llm.DefaultRetryPolicy()
	if cfg.LLM.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.LLM.MaxAttempts
	}
	extractor := llm.NewExtractor(model, logger,
		llm.WithRetryPolicy(policy),
		llm.WithPageTimeout(cfg.LLM.PageTimeout),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)

	store, closeStore, err := checkpoint.NewStore(ctx, cfg.Checkpoint, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := closeStore(); err != nil {
			logger.Warn("checkpoint.close_failed", "error", err)
		}
	})

	var opts []pipeline.Option
	if cfg.Output.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, common.NewAppError(common.CodeStorage, "gcs client", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		opts = append(opts, pipeline.WithPublisher(export.NewGCSPublisher(client, cfg.Output.Bucket, cfg.Output.Prefix, logger)))
	}

	runs, closeRuns, err := openRuns(ctx, cfg.Database, logger)
	if err != nil {
		// Run history is optional for extraction.
		logger.Warn("runs.disabled", "error", err)
	} else {
		a.runs = runs
		a.closers = append(a.closers, closeRuns)
		opts = append(opts, pipeline.WithRunRepository(runs))
	}

	a.pipeline = pipeline.New(pipeline.ConfigFromCommon(cfg), rasterizer, extractor, store, export.NewWriter(logger), logger, opts...)
	ok = true
	return a, nil
}

// newVisionModel builds the configured provider. Without credentials an
// OpenAI client with no key is returned; callers reject requests before it is
// used.
func newVisionModel(ctx context.Context, cfg *common.Config, logger *slog.Logger) (llm.VisionModel, func(), error) {
	if cfg.LLM.Provider == "vertex" && cfg.LLM.VertexProject != "" {
		c, err := vertex.NewClient(ctx, vertex.Config{
			ProjectID:       cfg.LLM.VertexProject,
			Region:          cfg.LLM.VertexRegion,
			Model:           cfg.LLM.VertexModel,
			Temperature:     cfg.LLM.Temperature,
			MaxOutputTokens: int32(cfg.LLM.MaxTokens),
		}, logger)
		if err != nil {
			return nil, nil, common.NewAppError(common.CodeConfig, "vertex client", err)
		}
		return c, func() { _ = c.Close() }, nil
	}
	c := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	return c, func() {}, nil
}

func openRuns(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (repository.RunRepository, func(), error) {
	db, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open run history: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate run history: %w", err)
	}
	return repository.NewRunRepository(db, logger), db.Close, nil
}
