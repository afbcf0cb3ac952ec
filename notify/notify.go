// Package notify delivers job-completion webhooks with bounded retry.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/siteqa/siteqa/metrics"
)

// Default delivery policy.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// Outcome is the final state of one delivery.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeAbandoned Outcome = "abandoned"
)

// Attempt records one delivery try.
type Attempt struct {
	Number    int       `json:"number"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Delivery summarizes a completed notification. It is informational only;
// an abandoned delivery is never an error for the job that triggered it.
type Delivery struct {
	Outcome   Outcome   `json:"outcome"`
	Attempts  []Attempt `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}

// Config holds delivery policy.
type Config struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first,
	// so a delivery makes at most 1+MaxRetries attempts.
	MaxRetries int

	// RetryDelay is the fixed wait between attempts.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Notifier posts payloads to caller-supplied callback URLs. Stateless and
// safe for concurrent use.
type Notifier struct {
	client  *http.Client
	config  Config
	collect *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Notifier. collect may be nil.
func New(cfg Config, collect *metrics.Metrics, logger *slog.Logger) *Notifier {
	cfg = cfg.withDefaults()
	if collect == nil {
		collect = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		client:  &http.Client{Timeout: cfg.Timeout},
		config:  cfg,
		collect: collect,
		logger:  logger,
	}
}

// Notify posts the payload to callbackURL as {"type": ..., "payload": ...}.
// Success is any 2xx within the attempt timeout; other outcomes retry after
// a fixed delay up to the attempt cap. A 4xx response abandons immediately
// since the endpoint has rejected the payload shape. Notify never returns
// an error: exhausted deliveries are logged and reported as Abandoned.
func (n *Notifier) Notify(ctx context.Context, callbackURL string, payload Payload) Delivery {
	delivery := Delivery{Outcome: OutcomeAbandoned}

	body, err := json.Marshal(envelope{Type: payload.Type(), Payload: payload})
	if err != nil {
		delivery.LastError = fmt.Sprintf("marshal payload: %v", err)
		n.logger.Error("webhook payload unmarshalable", "url", callbackURL, "error", err)
		n.collect.WebhookAbandoned.Inc()
		return delivery
	}

	maxAttempts := 1 + n.config.MaxRetries

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := n.post(ctx, callbackURL, body)
		record := Attempt{Number: attempt, Timestamp: time.Now().UTC()}

		if err == nil && status >= 200 && status < 300 {
			record.OK = true
			delivery.Attempts = append(delivery.Attempts, record)
			delivery.Outcome = OutcomeDelivered
			delivery.LastError = ""

			n.logger.Info("webhook delivered", "url", callbackURL, "attempt", attempt, "status", status)
			n.collect.WebhookDelivered.Inc()
			return delivery
		}

		if err != nil {
			record.Error = err.Error()
		} else {
			record.Error = fmt.Sprintf("HTTP %d", status)
		}
		delivery.Attempts = append(delivery.Attempts, record)
		delivery.LastError = record.Error

		n.logger.Warn("webhook attempt failed",
			"url", callbackURL,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", record.Error)

		// The endpoint understood the request and refused it; retrying
		// the same payload cannot succeed.
		if err == nil && status >= 400 && status < 500 {
			break
		}

		if attempt < maxAttempts {
			select {
			case <-time.After(n.config.RetryDelay):
			case <-ctx.Done():
				delivery.LastError = ctx.Err().Error()
				n.collect.WebhookAbandoned.Inc()
				return delivery
			}
		}
	}

	n.logger.Error("webhook abandoned",
		"url", callbackURL,
		"attempts", len(delivery.Attempts),
		"last_error", delivery.LastError)
	n.collect.WebhookAbandoned.Inc()
	return delivery
}

func (n *Notifier) post(ctx context.Context, callbackURL string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
