package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	ingestSubject = "siteqa.jobs.ingest"
	fetchMaxWait  = 5 * time.Second
)

// JetStream is a durable job queue backed by a NATS JetStream work
// queue stream. Jobs survive process restarts and are redelivered when
// a worker dies mid-run.
type JetStream struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	stream   string
	consumer string
	handler  Handler
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewJetStream connects to NATS and ensures the work queue stream and
// durable consumer exist.
func NewJetStream(ctx context.Context, url, stream, consumer string, handler Handler, logger *slog.Logger) (*JetStream, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("siteqa"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("get JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      stream,
		Subjects:  []string{ingestSubject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", stream, err)
	}

	if _, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:   consumer,
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   30 * time.Minute,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("create consumer %s: %w", consumer, err)
	}

	return &JetStream{
		nc:       nc,
		js:       js,
		stream:   stream,
		consumer: consumer,
		handler:  handler,
		logger:   logger,
	}, nil
}

// Start begins consuming jobs in the background.
func (q *JetStream) Start(ctx context.Context) error {
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
		q.consume(runCtx)
	}()

	q.logger.Info("jetstream job queue started",
		"stream", q.stream,
		"consumer", q.consumer)
	return nil
}

// Enqueue publishes a job to the work queue stream.
func (q *JetStream) Enqueue(ctx context.Context, job IngestJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if _, err := q.js.Publish(ctx, ingestSubject, data); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// consume pulls jobs one at a time until the context is cancelled.
func (q *JetStream) consume(ctx context.Context) {
	consumer, err := q.js.Consumer(ctx, q.stream, q.consumer)
	if err != nil {
		q.logger.Error("failed to get consumer",
			"error", err,
			"stream", q.stream,
			"consumer", q.consumer)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		for msg := range msgs.Messages() {
			select {
			case <-ctx.Done():
				// NAK so the job is redelivered to a live worker.
				_ = msg.Nak()
				for remaining := range msgs.Messages() {
					_ = remaining.Nak()
				}
				return
			default:
				q.handleMessage(ctx, msg)
			}
		}
	}
}

func (q *JetStream) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var job IngestJob
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		q.logger.Warn("dropping malformed job", "error", err)
		// Terminate rather than NAK: a malformed payload never parses.
		_ = msg.Term()
		return
	}

	q.handler(ctx, job)
	_ = msg.Ack()
}

// Stop cancels the consumer, waits for the in-flight job, and closes
// the connection.
func (q *JetStream) Stop() {
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
	q.nc.Close()
	q.logger.Info("jetstream job queue stopped")
}
