// Package metrics exposes Prometheus collectors for the ingest and query
// paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the process-wide collectors. Construct once with New and
// share the instance; a custom registry keeps tests isolated.
type Metrics struct {
	PagesScraped    prometheus.Counter
	PagesFailed     prometheus.Counter
	ChunksIndexed   prometheus.Counter
	TokensProcessed prometheus.Counter
	IngestDuration  prometheus.Histogram

	QueriesTotal    prometheus.Counter
	QueryErrors     prometheus.Counter
	QueryLatency    prometheus.Histogram
	RetrievalDocs   prometheus.Histogram
	TokensGenerated prometheus.Counter

	WebhookDelivered prometheus.Counter
	WebhookAbandoned prometheus.Counter
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer
// in production.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PagesScraped: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_pages_scraped_total",
			Help: "Pages fetched successfully across all ingestion runs.",
		}),
		PagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_pages_failed_total",
			Help: "Pages that failed to fetch or extract.",
		}),
		ChunksIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_chunks_indexed_total",
			Help: "Chunks upserted into the vector store.",
		}),
		TokensProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_tokens_processed_total",
			Help: "Tokens chunked and embedded during ingestion.",
		}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "siteqa_ingest_duration_seconds",
			Help:    "End-to-end duration of ingestion runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_queries_total",
			Help: "Questions answered, including failures.",
		}),
		QueryErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_query_errors_total",
			Help: "Questions that failed at generation.",
		}),
		QueryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "siteqa_query_latency_seconds",
			Help:    "Total per-question latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		RetrievalDocs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "siteqa_retrieval_docs",
			Help:    "Matches returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 2, 8),
		}),
		TokensGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_tokens_generated_total",
			Help: "Output tokens produced by the generative model.",
		}),
		WebhookDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_webhook_delivered_total",
			Help: "Webhook payloads delivered with a 2xx response.",
		}),
		WebhookAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteqa_webhook_abandoned_total",
			Help: "Webhook payloads abandoned after exhausting retries.",
		}),
	}
}

// NewUnregistered creates collectors on a private registry, for components
// that run without a metrics endpoint (tests, one-shot CLI commands).
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
