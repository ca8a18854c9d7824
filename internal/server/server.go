// Package server is the HTTP upload/download edge and the gRPC health
// endpoint in front of the extraction queue.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/pdftables/internal/async"
	"github.com/joseph-ayodele/pdftables/internal/common"
	"github.com/joseph-ayodele/pdftables/internal/repository"
)

const multipartMemory = 32 << 20

// Deps are the collaborators the HTTP handlers call into. Runs and Validate
// are optional.
type Deps struct {
	Queue       async.Queue
	Runs        repository.RunRepository
	Credentials func() bool
	Validate    func(path string) error
}

// Server holds the HTTP handlers.
type Server struct {
	cfg    common.ServerConfig
	deps   Deps
	logger *slog.Logger
}

func New(cfg common.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploaded"
	}
	if deps.Credentials == nil {
		deps.Credentials = func() bool { return false }
	}
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

// Router wires the routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(s.cfg.AllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/extract", s.handleExtract)
	r.Get("/runs", s.handleRuns)

	return r
}
