package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteqa/siteqa/metrics"
	"github.com/siteqa/siteqa/notify"
	"github.com/siteqa/siteqa/query"
	"github.com/siteqa/siteqa/queue"
)

type fakeEngine struct {
	answer     query.Answer
	batch      []query.Answer
	batchStats query.BatchMetrics
}

func (f *fakeEngine) Query(_ context.Context, question string) query.Answer {
	a := f.answer
	a.Question = question
	return a
}

func (f *fakeEngine) BatchQuery(_ context.Context, questions []string, _ bool) ([]query.Answer, query.BatchMetrics) {
	stats := f.batchStats
	stats.Questions = len(questions)
	return f.batch, stats
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.IngestJob
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job queue.IngestJob) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

type capturingNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
	urls     []string
}

func (c *capturingNotifier) Notify(_ context.Context, callbackURL string, payload notify.Payload) notify.Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, callbackURL)
	c.payloads = append(c.payloads, payload)
	return notify.Delivery{Outcome: notify.OutcomeDelivered}
}

func (c *capturingNotifier) wait(t *testing.T) notify.Payload {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.payloads) > 0 {
			p := c.payloads[0]
			c.mu.Unlock()
			return p
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("notifier never called")
	return nil
}

func newTestServer(t *testing.T, engine *fakeEngine, jobs *fakeQueue, notifier *capturingNotifier) *httptest.Server {
	t.Helper()
	if engine == nil {
		engine = &fakeEngine{}
	}
	if jobs == nil {
		jobs = &fakeQueue{}
	}
	if notifier == nil {
		notifier = &capturingNotifier{}
	}
	registry := prometheus.NewRegistry()
	metrics.New(registry)
	srv := New(":0", engine, jobs, notifier, registry, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResp(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeResp(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIngest_Accepted(t *testing.T) {
	jobs := &fakeQueue{}
	ts := newTestServer(t, nil, jobs, nil)

	resp := postJSON(t, ts.URL+"/api/ingest", IngestRequest{
		URLs:        []string{"https://example.com"},
		PageTypes:   []string{"docs"},
		CallbackURL: "https://hooks.test/cb",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body IngestResponse
	decodeResp(t, resp, &body)
	assert.Equal(t, "accepted", body.Status)
	assert.NotEmpty(t, body.JobID)

	require.Len(t, jobs.jobs, 1)
	assert.Equal(t, body.JobID, jobs.jobs[0].ID)
	assert.Equal(t, "https://hooks.test/cb", jobs.jobs[0].CallbackURL)
}

func TestIngest_Validation(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp := postJSON(t, ts.URL+"/api/ingest", IngestRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/api/ingest", IngestRequest{URLs: []string{"not a url"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(ts.URL + "/api/ingest")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
	getResp.Body.Close()
}

func TestIngest_QueueFull(t *testing.T) {
	jobs := &fakeQueue{err: errors.New("job queue full (64 pending)")}
	ts := newTestServer(t, nil, jobs, nil)

	resp := postJSON(t, ts.URL+"/api/ingest", IngestRequest{URLs: []string{"https://example.com"}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestQuery(t *testing.T) {
	engine := &fakeEngine{answer: query.Answer{
		Answer:    "Acme ships on Fridays.",
		Citations: []query.Citation{{URL: "https://example.com/faq", Title: "FAQ"}},
	}}
	ts := newTestServer(t, engine, nil, nil)

	resp := postJSON(t, ts.URL+"/api/query", QueryRequest{Question: "When do you ship?"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body query.Answer
	decodeResp(t, resp, &body)
	assert.Equal(t, "When do you ship?", body.Question)
	assert.Equal(t, "Acme ships on Fridays.", body.Answer)
	require.Len(t, body.Citations, 1)
	assert.Equal(t, "https://example.com/faq", body.Citations[0].URL)
}

func TestQuery_EmptyQuestion(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)
	resp := postJSON(t, ts.URL+"/api/query", QueryRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuery_EngineError(t *testing.T) {
	engine := &fakeEngine{answer: query.Answer{Err: errors.New("model unavailable")}}
	ts := newTestServer(t, engine, nil, nil)

	resp := postJSON(t, ts.URL+"/api/query", QueryRequest{Question: "anything"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body ErrorResponse
	decodeResp(t, resp, &body)
	assert.Equal(t, "query_failed", body.Error)
}

func TestBatchQuery_Sync(t *testing.T) {
	engine := &fakeEngine{
		batch: []query.Answer{
			{Question: "q1", Answer: "a1"},
			{Question: "q2", Err: errors.New("boom")},
		},
		batchStats: query.BatchMetrics{Failed: 1},
	}
	ts := newTestServer(t, engine, nil, nil)

	resp := postJSON(t, ts.URL+"/api/query/batch", BatchQueryRequest{Questions: []string{"q1", "q2"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body BatchQueryResponse
	decodeResp(t, resp, &body)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "a1", body.Results[0].Answer)
	assert.Equal(t, "boom", body.Results[1].Error)
	assert.Equal(t, 2, body.Metrics.Questions)
	assert.Equal(t, 1, body.Metrics.Failed)
}

func TestBatchQuery_AsyncCallback(t *testing.T) {
	engine := &fakeEngine{
		batch: []query.Answer{{Question: "q1", Answer: "a1"}},
	}
	notifier := &capturingNotifier{}
	ts := newTestServer(t, engine, nil, notifier)

	resp := postJSON(t, ts.URL+"/api/query/batch", BatchQueryRequest{
		Questions:   []string{"q1"},
		CallbackURL: "https://hooks.test/batch",
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	payload, ok := notifier.wait(t).(notify.BatchQueryPayload)
	require.True(t, ok)
	assert.Equal(t, notify.StatusSuccess, payload.Status)
	require.Len(t, payload.Results, 1)
	assert.Equal(t, "a1", payload.Results[0].Answer)
	assert.Equal(t, "https://hooks.test/batch", notifier.urls[0])
}

func TestBatchQuery_NoQuestions(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)
	resp := postJSON(t, ts.URL+"/api/query/batch", BatchQueryRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidJSON(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/query", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
