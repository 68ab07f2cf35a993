package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/urlscraper/internal/metrics"
	"github.com/JakeFAU/urlscraper/internal/scrape"
	"github.com/JakeFAU/urlscraper/internal/worker"
)

// DefaultRequestTimeout bounds a request when Options leaves it unset.
const DefaultRequestTimeout = 60 * time.Second

// RunSubmitter queues runs for background execution.
type RunSubmitter interface {
	Submit(ctx context.Context, item scrape.RunItem) error
}

// RunExecutor executes a run inline.
type RunExecutor interface {
	Execute(ctx context.Context, req worker.RunRequest) (worker.RunResult, error)
}

// RunLister pages through stored runs, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, status *scrape.RunStatus, limit, offset int) ([]scrape.Run, error)
}

// Deps are the collaborators the handlers need. Lister is optional.
type Deps struct {
	Submitter RunSubmitter
	Executor  RunExecutor
	Runs      scrape.RunStore
	Lister    RunLister
	IDs       scrape.IDGenerator
	Clock     scrape.Clock
}

// Options tune middleware and readiness.
type Options struct {
	AuthEnabled    bool
	APIKey         string
	RequestTimeout time.Duration
	// Ready reports whether downstream dependencies can take traffic.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the run pool and stores.
type Server struct {
	router chi.Router
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, opts Options, logger *zap.Logger) (*Server, error) {
	if deps.Submitter == nil || deps.Executor == nil {
		return nil, errors.New("api server requires a submitter and an executor")
	}
	if deps.Runs == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("api server requires a run store, id generator and clock")
	}
	if opts.AuthEnabled && opts.APIKey == "" {
		return nil, errors.New("api key is required when auth is enabled")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{deps: deps, opts: opts, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
		if opts.AuthEnabled {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Route("/v1/scrapes", func(r chi.Router) {
			r.Post("/", s.submitScrape)
			r.Get("/", s.listScrapes)
			r.Get("/{run_id}", s.getScrape)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, s.logger, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeError(w, s.logger, status, msg)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
