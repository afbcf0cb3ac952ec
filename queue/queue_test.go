package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteqa/siteqa/ingest"
	"github.com/siteqa/siteqa/notify"
)

type fakePipeline struct {
	metrics *ingest.Metrics
	err     error
	calls   atomic.Int64
	seeds   []string
}

func (f *fakePipeline) Run(_ context.Context, seeds, _ []string) (*ingest.Metrics, error) {
	f.calls.Add(1)
	f.seeds = seeds
	return f.metrics, f.err
}

type fakeNotifier struct {
	mu       sync.Mutex
	urls     []string
	payloads []notify.Payload
}

func (f *fakeNotifier) Notify(_ context.Context, callbackURL string, payload notify.Payload) notify.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, callbackURL)
	f.payloads = append(f.payloads, payload)
	return notify.Delivery{Outcome: notify.OutcomeDelivered}
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestNewIngestJob(t *testing.T) {
	job := NewIngestJob([]string{"https://example.com"}, []string{"docs"}, "https://hooks.test/cb")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, []string{"https://example.com"}, job.URLs)
	assert.Equal(t, "https://hooks.test/cb", job.CallbackURL)
	assert.False(t, job.SubmittedAt.IsZero())

	other := NewIngestJob(nil, nil, "")
	assert.NotEqual(t, job.ID, other.ID)
}

func TestIngestHandler_Success(t *testing.T) {
	pipeline := &fakePipeline{metrics: &ingest.Metrics{PagesScraped: 3, TotalChunksCreated: 12}}
	notifier := &fakeNotifier{}
	handler := NewIngestHandler(pipeline, notifier, nil)

	job := NewIngestJob([]string{"https://example.com"}, nil, "https://hooks.test/cb")
	handler(context.Background(), job)

	assert.Equal(t, int64(1), pipeline.calls.Load())
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "https://hooks.test/cb", notifier.urls[0])

	payload, ok := notifier.payloads[0].(notify.IngestionPayload)
	require.True(t, ok)
	assert.Equal(t, notify.StatusSuccess, payload.Status)
	assert.Equal(t, job.ID, payload.JobID)
	assert.Empty(t, payload.Error)
	assert.Equal(t, 3, payload.Metrics["pages_scraped"])
}

func TestIngestHandler_Failure(t *testing.T) {
	pipeline := &fakePipeline{err: errors.New("embedding failed, run aborted")}
	notifier := &fakeNotifier{}
	handler := NewIngestHandler(pipeline, notifier, nil)

	handler(context.Background(), NewIngestJob([]string{"https://example.com"}, nil, "https://hooks.test/cb"))

	require.Equal(t, 1, notifier.count())
	payload := notifier.payloads[0].(notify.IngestionPayload)
	assert.Equal(t, notify.StatusFailed, payload.Status)
	assert.Contains(t, payload.Error, "embedding failed")
}

func TestIngestHandler_NoCallback(t *testing.T) {
	pipeline := &fakePipeline{metrics: &ingest.Metrics{}}
	notifier := &fakeNotifier{}
	handler := NewIngestHandler(pipeline, notifier, nil)

	handler(context.Background(), NewIngestJob([]string{"https://example.com"}, nil, ""))

	assert.Equal(t, int64(1), pipeline.calls.Load())
	assert.Equal(t, 0, notifier.count())
}

func TestLocal_RunsJobs(t *testing.T) {
	done := make(chan string, 4)
	q := NewLocal(func(_ context.Context, job IngestJob) {
		done <- job.ID
	}, 4, nil)

	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	job := NewIngestJob([]string{"https://example.com"}, nil, "")
	require.NoError(t, q.Enqueue(context.Background(), job))

	select {
	case id := <-done:
		assert.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never handled")
	}
}

func TestLocal_EnqueueBeforeStart(t *testing.T) {
	q := NewLocal(func(context.Context, IngestJob) {}, 1, nil)
	err := q.Enqueue(context.Background(), NewIngestJob(nil, nil, ""))
	assert.ErrorContains(t, err, "not running")
}

func TestLocal_Backpressure(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	q := NewLocal(func(context.Context, IngestJob) {
		startedOnce.Do(func() { close(started) })
		<-block
	}, 1, nil)
	require.NoError(t, q.Start(context.Background()))
	defer func() {
		close(block)
		q.Stop()
	}()

	// First job occupies the worker, second fills the buffer.
	require.NoError(t, q.Enqueue(context.Background(), NewIngestJob(nil, nil, "")))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), NewIngestJob(nil, nil, "")))

	err := q.Enqueue(context.Background(), NewIngestJob(nil, nil, ""))
	assert.ErrorContains(t, err, "queue full")
}

func TestLocal_StopWaitsForInflight(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{})
	q := NewLocal(func(ctx context.Context, _ IngestJob) {
		close(started)
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
		}
		finished.Store(true)
	}, 1, nil)
	require.NoError(t, q.Start(context.Background()))

	require.NoError(t, q.Enqueue(context.Background(), NewIngestJob(nil, nil, "")))
	<-started
	q.Stop()

	assert.True(t, finished.Load())
}

func TestLocal_DoubleStart(t *testing.T) {
	q := NewLocal(func(context.Context, IngestJob) {}, 1, nil)
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()
	assert.Error(t, q.Start(context.Background()))
}
