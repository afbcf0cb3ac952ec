package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const defaultLocalBuffer = 64

// Local is an in-process job queue backed by a buffered channel. It is
// the default when no NATS URL is configured: jobs survive only as long
// as the process does.
type Local struct {
	handler Handler
	jobs    chan IngestJob
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLocal creates an in-process queue. Buffer <= 0 uses the default.
func NewLocal(handler Handler, buffer int, logger *slog.Logger) *Local {
	if buffer <= 0 {
		buffer = defaultLocalBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{
		handler: handler,
		jobs:    make(chan IngestJob, buffer),
		logger:  logger,
	}
}

// Start launches the worker goroutine. Jobs run one at a time so a
// large crawl cannot starve the host of connections.
func (q *Local) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.running = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case job := <-q.jobs:
				q.handler(runCtx, job)
			}
		}
	}()

	q.logger.Info("local job queue started", "buffer", cap(q.jobs))
	return nil
}

// Enqueue submits a job. It fails rather than blocks when the buffer is
// full so the API can report backpressure to the caller.
func (q *Local) Enqueue(ctx context.Context, job IngestJob) error {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	if !running {
		return fmt.Errorf("queue not running")
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("job queue full (%d pending)", cap(q.jobs))
	}
}

// Stop cancels the worker and waits for the in-flight job to finish.
func (q *Local) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("local job queue stopped")
}
