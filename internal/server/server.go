// Package server provides the HTTP API for person search and record maintenance.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/personae/internal/config"
	"github.com/hyperjump/personae/internal/search"
	"github.com/hyperjump/personae/internal/storage"
	"github.com/hyperjump/personae/pkg/utils"
)

// IndexStatus reports on the open index generation. *index.Handle implements it.
type IndexStatus interface {
	DocCount() (uint64, error)
	Generation() string
}

// SyncStatus reports suppressed sync failures. *indexer.Synchronizer implements it.
type SyncStatus interface {
	Failures() int64
}

// Server is the HTTP server for the personae API.
type Server struct {
	engine   *search.Engine
	persons  storage.PersonStore
	index    IndexStatus
	sync     SyncStatus
	config   *config.Config
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSyncStatus exposes suppressed sync failures in /api/v1/status.
func WithSyncStatus(s SyncStatus) Option {
	return func(srv *Server) { srv.sync = s }
}

// WithGatherer sets the metrics source served at /metrics. Defaults to the global registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(srv *Server) { srv.gatherer = g }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	persons storage.PersonStore,
	idx IndexStatus,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		engine:   engine,
		persons:  persons,
		index:    idx,
		config:   cfg,
		gatherer: prometheus.DefaultGatherer,
		logger:   utils.OrNop(logger),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/persons/search", s.handleSearchPersons)
		r.Post("/persons", s.handleCreatePerson)
		r.Get("/persons/{id}", s.handleGetPerson)
		r.Put("/persons/{id}", s.handleUpdatePerson)
		r.Delete("/persons/{id}", s.handleDeletePerson)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
