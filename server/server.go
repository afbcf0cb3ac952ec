// Package server exposes the siteqa REST API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siteqa/siteqa/notify"
	"github.com/siteqa/siteqa/query"
	"github.com/siteqa/siteqa/queue"
)

const (
	readHeaderTimeout = 10 * time.Second
	// Queries can sit behind a slow model, so the write timeout is
	// generous rather than absent.
	writeTimeout    = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// QueryEngine answers questions against the indexed corpus.
// *query.Engine satisfies it.
type QueryEngine interface {
	Query(ctx context.Context, question string) query.Answer
	BatchQuery(ctx context.Context, questions []string, concurrent bool) ([]query.Answer, query.BatchMetrics)
}

// JobQueue accepts ingestion jobs. Both queue backends satisfy it.
type JobQueue interface {
	Enqueue(ctx context.Context, job queue.IngestJob) error
}

// Server is the siteqa HTTP API.
type Server struct {
	engine   QueryEngine
	jobs     JobQueue
	notifier queue.Notifier
	registry *prometheus.Registry
	logger   *slog.Logger

	httpServer *http.Server
}

// New creates the API server. The registry may be nil when the /metrics
// endpoint is not wanted.
func New(addr string, engine QueryEngine, jobs JobQueue, notifier queue.Notifier, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:   engine,
		jobs:     jobs,
		notifier: notifier,
		registry: registry,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/ingest", s.handleIngest)
	mux.HandleFunc("/api/query", s.handleQuery)
	mux.HandleFunc("/api/query/batch", s.handleBatchQuery)
	if registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// asyncBatch runs a batch in the background and delivers the results to
// the callback URL.
func (s *Server) asyncBatch(questions []string, concurrent bool, callbackURL string) {
	go func() {
		ctx := context.Background()
		answers, metrics := s.engine.BatchQuery(ctx, questions, concurrent)

		payload := notify.BatchQueryPayload{
			Status:    notify.StatusSuccess,
			Results:   notify.BatchResults(answers),
			Metrics:   metrics,
			Timestamp: time.Now().UTC(),
		}
		if metrics.Failed > 0 && metrics.Failed == metrics.Questions {
			payload.Status = notify.StatusFailed
		}

		delivery := s.notifier.Notify(ctx, callbackURL, payload)
		s.logger.Info("batch query callback finished",
			"outcome", delivery.Outcome,
			"questions", metrics.Questions,
			"failed", metrics.Failed)
	}()
}
