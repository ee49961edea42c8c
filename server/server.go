// Package server exposes the dispatcher over HTTP.
//
// Routes:
//
//	POST /         → score a JSON array of {"text": ...} records
//	GET  /health   → scorer and dispatcher health
//	GET  /metrics  → Prometheus metrics
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JohnPlummer/batch-scorer/dispatcher"
	"github.com/JohnPlummer/batch-scorer/scorer"
)

const (
	// maxRequestBodyBytes caps incoming JSON request bodies at 10 MB.
	maxRequestBodyBytes = 10 * 1024 * 1024

	defaultShutdownTimeout = 30 * time.Second
)

// Config holds HTTP layer settings
type Config struct {
	// RequestTimeout bounds how long a caller waits for its results; zero waits forever
	RequestTimeout time.Duration

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Server is the batch scoring HTTP server
type Server struct {
	cfg        Config
	dispatcher *dispatcher.Dispatcher
	backend    scorer.Scorer
	handler    http.Handler
	started    time.Time
}

// New creates a Server with all routes registered. backend is only used
// for health reporting; all scoring goes through d.
func New(cfg Config, d *dispatcher.Dispatcher, backend scorer.Scorer) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		backend:    backend,
		started:    time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleScore)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", scorer.GetMetricsHandler())

	s.handler = chain(mux, recovery, requestLogger, requestID)
	return s
}

// Handler returns the root handler including middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: orDefault(s.cfg.ReadHeaderTimeout, 10*time.Second),
		IdleTimeout:       orDefault(s.cfg.IdleTimeout, 120*time.Second),
		// No WriteTimeout: callers wait on a backend with unbounded latency
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		orDefault(s.cfg.ShutdownTimeout, defaultShutdownTimeout))
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
