package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/siteqa/siteqa/notify"
)

// NewIngestHandler builds the Handler that runs an ingestion job end to
// end: pipeline run, then webhook delivery of the run report. Jobs
// without a callback URL skip the notification step.
func NewIngestHandler(pipeline PipelineRunner, notifier Notifier, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, job IngestJob) {
		log := logger.With("job_id", job.ID)
		log.Info("ingest job started", "urls", len(job.URLs))

		metrics, err := pipeline.Run(ctx, job.URLs, job.PageTypes)

		payload := notify.IngestionPayload{
			Status:    notify.StatusSuccess,
			JobID:     job.ID,
			URLs:      job.URLs,
			Timestamp: time.Now().UTC(),
		}
		if metrics != nil {
			payload.Metrics = metrics.Payload()
		}
		if err != nil {
			payload.Status = notify.StatusFailed
			payload.Error = err.Error()
			log.Error("ingest job failed", "error", err)
		} else {
			log.Info("ingest job completed",
				"pages_scraped", metrics.PagesScraped,
				"chunks_created", metrics.TotalChunksCreated)
		}

		if job.CallbackURL == "" {
			return
		}
		delivery := notifier.Notify(ctx, job.CallbackURL, payload)
		log.Info("ingest job callback finished",
			"outcome", delivery.Outcome,
			"attempts", len(delivery.Attempts))
	}
}
