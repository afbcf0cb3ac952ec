package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/siteqa/siteqa/notify"
	"github.com/siteqa/siteqa/query"
	"github.com/siteqa/siteqa/queue"
	"github.com/siteqa/siteqa/weburl"
)

// maxRequestBody caps API request bodies at 1MB.
const maxRequestBody = 1 << 20

// IngestRequest is the body of POST /api/ingest.
type IngestRequest struct {
	URLs        []string `json:"urls"`
	PageTypes   []string `json:"page_types,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// IngestResponse acknowledges an accepted ingestion job.
type IngestResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Question string `json:"question"`
}

// BatchQueryRequest is the body of POST /api/query/batch.
type BatchQueryRequest struct {
	Questions   []string `json:"questions"`
	Concurrent  bool     `json:"concurrent"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// BatchQueryResponse is the synchronous batch response.
type BatchQueryResponse struct {
	Results []notify.BatchQueryResult `json:"results"`
	Metrics query.BatchMetrics        `json:"metrics"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "urls is required")
		return
	}
	for _, raw := range req.URLs {
		if err := weburl.ValidateURL(raw); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid url "+raw+": "+err.Error())
			return
		}
	}

	job := queue.NewIngestJob(req.URLs, req.PageTypes, req.CallbackURL)
	if err := s.jobs.Enqueue(r.Context(), job); err != nil {
		s.logger.Error("failed to enqueue ingest job", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "queue_unavailable", err.Error())
		return
	}

	s.logger.Info("ingest job accepted", "job_id", job.ID, "urls", len(job.URLs))
	writeJSON(w, http.StatusAccepted, IngestResponse{
		Status: "accepted",
		JobID:  job.ID,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req QueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Question == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}

	answer := s.engine.Query(r.Context(), req.Question)
	if answer.Err != nil {
		s.logger.Error("query failed", "error", answer.Err)
		writeJSONError(w, http.StatusBadGateway, "query_failed", answer.Err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleBatchQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req BatchQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Questions) == 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "questions is required")
		return
	}

	if req.CallbackURL != "" {
		s.asyncBatch(req.Questions, req.Concurrent, req.CallbackURL)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	answers, metrics := s.engine.BatchQuery(r.Context(), req.Questions, req.Concurrent)
	writeJSON(w, http.StatusOK, BatchQueryResponse{
		Results: notify.BatchResults(answers),
		Metrics: metrics,
	})
}

// decodeBody parses a JSON request body, writing the error response
// itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
