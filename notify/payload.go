package notify

import (
	"time"

	"github.com/siteqa/siteqa/query"
)

// Payload is a typed webhook body. On the wire it is wrapped as
// {"type": Type(), "payload": <payload JSON>}.
type Payload interface {
	Type() string
}

// envelope is the wire wrapper.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Job status values reported in payloads.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// IngestionPayload reports a finished ingestion job.
type IngestionPayload struct {
	Status    string         `json:"status"`
	JobID     string         `json:"job_id"`
	URLs      []string       `json:"urls"`
	Metrics   map[string]any `json:"metrics,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (IngestionPayload) Type() string { return "ingestion" }

// BatchQueryResult is one question's outcome in a batch payload.
type BatchQueryResult struct {
	Question string           `json:"question"`
	Answer   string           `json:"answer"`
	Sources  []query.Citation `json:"sources"`
	Metrics  query.Metrics    `json:"metrics"`
	Error    string           `json:"error,omitempty"`
}

// BatchQueryPayload reports a finished asynchronous batch query.
type BatchQueryPayload struct {
	Status    string             `json:"status"`
	Results   []BatchQueryResult `json:"results"`
	Metrics   query.BatchMetrics `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}

func (BatchQueryPayload) Type() string { return "batch_query" }

// BatchResults converts engine answers into payload results.
func BatchResults(answers []query.Answer) []BatchQueryResult {
	results := make([]BatchQueryResult, len(answers))
	for i, a := range answers {
		results[i] = BatchQueryResult{
			Question: a.Question,
			Answer:   a.Answer,
			Sources:  a.Citations,
			Metrics:  a.Metrics,
		}
		if a.Err != nil {
			results[i].Error = a.Err.Error()
		}
	}
	return results
}
