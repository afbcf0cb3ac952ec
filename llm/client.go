// Package llm provides a provider-agnostic client for generative models.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// maxResponseSize limits the response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Generation contains the model output and token accounting for one call.
type Generation struct {
	// Text is the generated answer.
	Text string

	// Model is the actual model that produced the text.
	Model string

	// InputTokens and OutputTokens come from the provider's usage block
	// when present, otherwise from a local tokenizer estimate.
	InputTokens  int
	OutputTokens int

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// Config holds generative model client configuration.
type Config struct {
	// Provider selects the adapter: "ollama", "openai", or "anthropic".
	Provider string

	// Model is the model name passed to the provider.
	Model string

	// BaseURL overrides the provider's default endpoint.
	BaseURL string

	// Temperature is nil for the provider default, 0 for deterministic.
	Temperature *float64

	// MaxTokens caps response length. 0 uses the provider default.
	MaxTokens int

	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// Client sends generation requests to a configured provider.
//
// A failed generation is returned to the caller unretried. Retrieval
// answers are user-facing and latency-sensitive; the caller decides
// whether asking again is worth it. Webhook delivery is where retry
// lives in this system.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a client for the configured provider.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if GetProvider(cfg.Provider) == nil {
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Generate sends one completion request and returns the generation.
// Errors are classified transient or fatal for the caller's benefit, but
// the client itself never retries.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (*Generation, error) {
	if userPrompt == "" {
		return nil, NewFatalError(fmt.Errorf("user prompt is required"))
	}

	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: userPrompt})

	provider := GetProvider(c.config.Provider)
	url := provider.BuildURL(c.config.BaseURL)

	body, err := provider.BuildRequestBody(c.config.Model, messages, c.config.Temperature, c.config.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("sending generation request",
		"provider", c.config.Provider,
		"model", c.config.Model,
		"url", url)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	gen, err := provider.ParseResponse(respBody, c.config.Model)
	if err != nil {
		return nil, NewFatalError(err)
	}

	// Some local servers omit the usage block. Fall back to a tokenizer
	// count so cost estimates stay meaningful.
	if gen.InputTokens == 0 {
		gen.InputTokens = CountTokens(systemPrompt) + CountTokens(userPrompt)
	}
	if gen.OutputTokens == 0 {
		gen.OutputTokens = CountTokens(gen.Text)
	}

	c.logger.Debug("generation complete",
		"model", gen.Model,
		"input_tokens", gen.InputTokens,
		"output_tokens", gen.OutputTokens,
		"duration", time.Since(start))

	return gen, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("model API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		// Bad requests are fatal
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}

var (
	tokenEncOnce sync.Once
	tokenEnc     *tiktoken.Tiktoken
)

// CountTokens estimates the cl100k_base token count of text. Returns a
// 4-chars-per-token approximation if the tokenizer vocabulary cannot load.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	tokenEncOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			tokenEnc = enc
		}
	})
	if tokenEnc == nil {
		return (len(text) + 3) / 4
	}
	return len(tokenEnc.Encode(text, nil, nil))
}
