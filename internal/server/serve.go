package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

const shutdownTimeout = 15 * time.Second

// Runtime owns the listening HTTP and gRPC servers.
type Runtime struct {
	HTTP   *http.Server
	GRPC   *grpc.Server // nil disables gRPC
	Health *health.Server
	Logger *slog.Logger
}

// NewRuntime builds the servers for cfg. gRPC is enabled when GRPCAddr is set.
func NewRuntime(cfg common.ServerConfig, handler http.Handler, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		HTTP: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Logger: logger,
	}
	if cfg.GRPCAddr != "" {
		rt.GRPC, rt.Health = NewGRPCServer()
	}
	return rt
}

// ListenAndServe opens the configured addresses and serves until ctx ends.
func (rt *Runtime) ListenAndServe(ctx context.Context, grpcAddr string) error {
	httpLis, err := net.Listen("tcp", rt.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", rt.HTTP.Addr, err)
	}
	var grpcLis net.Listener
	if rt.GRPC != nil {
		grpcLis, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", grpcAddr, err)
		}
	}
	return rt.Serve(ctx, httpLis, grpcLis)
}

// Serve runs both servers on the given listeners. When ctx is cancelled or
// either server fails, both are shut down gracefully.
func (rt *Runtime) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rt.Logger.Info("http.serve.start", "addr", httpLis.Addr().String())
		if err := rt.HTTP.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})

	if rt.GRPC != nil && grpcLis != nil {
		g.Go(func() error {
			rt.Logger.Info("grpc.serve.start", "addr", grpcLis.Addr().String())
			if err := rt.GRPC.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		rt.shutdown()
		return nil
	})

	err := g.Wait()
	rt.Logger.Info("server.stopped", "error", err)
	return err
}

func (rt *Runtime) shutdown() {
	rt.Logger.Info("server.shutdown.start")
	if rt.Health != nil {
		rt.Health.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rt.HTTP.Shutdown(ctx); err != nil {
		rt.Logger.Error("http.shutdown_failed", "error", err)
		_ = rt.HTTP.Close()
	}

	if rt.GRPC != nil {
		done := make(chan struct{})
		go func() { defer close(done); rt.GRPC.GracefulStop() }()
		select {
		case <-done:
		case <-ctx.Done():
			rt.GRPC.Stop()
		}
	}
}
