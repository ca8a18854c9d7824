package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/pdftables/internal/async"
	"github.com/joseph-ayodele/pdftables/internal/raster"
	"github.com/joseph-ayodele/pdftables/internal/server"
)

const queueDrainTimeout = 30 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var httpAddr, grpcAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP upload API and the gRPC health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if httpAddr != "" {
				c.cfg.Server.HTTPAddr = httpAddr
			}
			if grpcAddr != "" {
				c.cfg.Server.GRPCAddr = grpcAddr
			}
			return runServe(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (default HTTP_ADDR)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC health listen address (default GRPC_ADDR, empty disables)")
	return cmd
}

func runServe(ctx context.Context, c *cli) error {
	cfg := c.cfg
	logger := c.logger
	if err := cfg.ValidateForServer(); err != nil {
		return err
	}
	if !cfg.HasModelCredentials() {
		logger.Warn("serve.no_credentials", "provider", cfg.LLM.Provider)
	}
	for _, dir := range []string{cfg.Server.UploadDir, cfg.Pipeline.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	queue := async.NewProcessorQueue(a.pipeline, logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
		async.WithProcessTimeout(cfg.Server.JobTimeout),
	)

	srv := server.New(cfg.Server, server.Deps{
		Queue:       queue,
		Runs:        a.runs,
		Credentials: cfg.HasModelCredentials,
		Validate:    raster.Validate,
	}, logger)

	rt := server.NewRuntime(cfg.Server, srv.Router(), logger)
	logger.Info("serve.start",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"workers", cfg.Server.Workers,
		"model", a.model,
	)
	serveErr := rt.ListenAndServe(ctx, cfg.Server.GRPCAddr)

	drainCtx, cancel := context.WithTimeout(context.Background(), queueDrainTimeout)
	defer cancel()
	queue.Shutdown(drainCtx)
	return serveErr
}
