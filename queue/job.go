package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/siteqa/siteqa/ingest"
	"github.com/siteqa/siteqa/notify"
)

// IngestJob is a unit of ingestion work: crawl the seed URLs, index the
// content, and deliver the run report to the callback URL if one is set.
type IngestJob struct {
	ID          string    `json:"id"`
	URLs        []string  `json:"urls"`
	PageTypes   []string  `json:"page_types,omitempty"`
	CallbackURL string    `json:"callback_url,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewIngestJob creates a job with a fresh ID.
func NewIngestJob(urls, pageTypes []string, callbackURL string) IngestJob {
	return IngestJob{
		ID:          uuid.NewString(),
		URLs:        urls,
		PageTypes:   pageTypes,
		CallbackURL: callbackURL,
		SubmittedAt: time.Now().UTC(),
	}
}

// Handler processes one job. Handlers own their error reporting; the
// queue only cares about completion.
type Handler func(ctx context.Context, job IngestJob)

// PipelineRunner is the ingestion side of a job. *ingest.Pipeline
// satisfies it.
type PipelineRunner interface {
	Run(ctx context.Context, seeds []string, pageTypes []string) (*ingest.Metrics, error)
}

// Notifier delivers job results to callback URLs. *notify.Notifier
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, callbackURL string, payload notify.Payload) notify.Delivery
}
