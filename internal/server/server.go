// Package server exposes the badge service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/metrics"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/service"
)

// BadgeService is the set of badge operations the API serves.
type BadgeService interface {
	Fetch(ctx context.Context, name string) (*service.Badge, error)
	Update(ctx context.Context, name string, req badge.Request) (*service.UpdateResult, error)
	Delete(ctx context.Context, name string) error
	CoverageReport(ctx context.Context, report badge.CoverageReport) (*service.ReportResult, error)
	UpdateFromProfile(ctx context.Context, name, label string, profile []byte) (*service.ProfileResult, error)
}

// Server represents an HTTP server with graceful shutdown capabilities
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	badges     BadgeService
	logger     *slog.Logger
}

// Config holds the configuration for the HTTP server
type Config struct {
	Port   int
	Logger *slog.Logger

	Badges BadgeService

	// APIKey guards PUT, DELETE and POST routes
	APIKey string

	// Debug echoes the provided and expected API keys in auth errors
	Debug bool

	// Metrics is served at /metrics and records every request (optional)
	Metrics *metrics.Metrics
}

// New creates a new HTTP server with the given configuration
func New(cfg Config) (*Server, error) {
	if cfg.Badges == nil {
		return nil, errors.New("badge service is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		mux:    http.NewServeMux(),
		badges: cfg.Badges,
		logger: cfg.Logger,
	}

	requireKey := APIKey(cfg.APIKey, cfg.Debug, cfg.Logger)

	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /v1/badges/{badgeName}", s.getBadge)
	s.mux.Handle("PUT /v1/badges/{badgeName}", requireKey(http.HandlerFunc(s.updateBadge)))
	s.mux.Handle("DELETE /v1/badges/{badgeName}", requireKey(http.HandlerFunc(s.deleteBadge)))
	s.mux.Handle("POST /v1/coverage-reports", requireKey(http.HandlerFunc(s.coverageReport)))
	s.mux.Handle("POST /v1/coverage-profiles/{badgeName}", requireKey(http.HandlerFunc(s.coverageProfile)))

	middleware := []func(http.Handler) http.Handler{
		Recovery(cfg.Logger),
		RequestID,
		Logging(cfg.Logger),
	}
	if cfg.Metrics != nil {
		s.mux.Handle("GET /metrics", cfg.Metrics.Handler())
		// innermost, so it sees the pattern the mux matched
		middleware = append(middleware, cfg.Metrics.Middleware)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           Chain(s.mux, middleware...),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server with a timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
