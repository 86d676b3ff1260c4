// Package api is the HTTP surface (C6): intake, status, tree and lifecycle
// routes over the record store and job queue. Grounded on
// flyingrobots-go-redis-work-queue's internal/admin-api/server.go (explicit Handler struct holding its
// dependencies, http.Server wrapped for graceful Shutdown) and
// middleware.go (the func(http.Handler) http.Handler middleware chain,
// token-bucket rate limiting, request-id/recovery/audit logging), adapted
// from chi-free raw mux routing to github.com/go-chi/chi/v5 with
// github.com/go-chi/cors, and from JWT bearer auth to the flat x-api-key
// shared secret this service's external interfaces design calls for.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/repoanalyzer/internal/config"
	"github.com/kraklabs/repoanalyzer/internal/queue"
	"github.com/kraklabs/repoanalyzer/internal/store"
)

// strictAnalyzeRequests/strictAnalyzeWindow are the hardcoded per-caller cap
// on POST /analyze: the external interfaces design calls for a second,
// stricter limiter on this one route, but config.go carries no environment
// keys for it.
const (
	strictAnalyzeRequests = 10
	strictAnalyzeWindow   = time.Hour
)

// Server wires the record store and job queue behind an HTTP router.
type Server struct {
	logger  *slog.Logger
	env     string
	records store.Record
	queue   *queue.Queue

	router http.Handler
	http   *http.Server
}

// New builds a Server listening on cfg.Server.Port, ready for Start.
func New(cfg *config.Config, records store.Record, q *queue.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger, env: cfg.Server.Env, records: records, queue: q}

	global := newRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMS)*time.Millisecond)
	strict := newRateLimiter(strictAnalyzeRequests, strictAnalyzeWindow)

	r := chi.NewRouter()
	r.Use(requestID())
	r.Use(requestLog(logger))
	r.Use(recovery(logger, cfg.Server.Env))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORS.Origin},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "x-api-key"},
		AllowCredentials: cfg.CORS.Credentials,
		MaxAge:           3600,
	}))
	r.Use(global.middleware())

	r.Get("/health", s.handleHealth)
	r.Get("/ping", s.handlePing)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/"+cfg.Server.APIVersion, func(rt chi.Router) {
		rt.Use(auth(cfg.Auth.APIKey))
		rt.With(strict.middleware()).Post("/analyze", s.handleAnalyze)
		rt.Get("/analysis/{id}/status", s.handleStatus)
		rt.Get("/analysis/{id}/tree", s.handleTree)
		rt.Get("/analyses", s.handleList)
		rt.Delete("/analysis/{id}", s.handleDelete)
	})

	s.router = r
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving and blocks until the listener stops. Callers run it
// in its own goroutine and call Shutdown to stop it.
func (s *Server) Start() error {
	s.logger.Info("api.start", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within ctx's deadline before closing
// the listener, per the service's 30-second graceful shutdown window.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("api.shutdown")
	return s.http.Shutdown(ctx)
}
