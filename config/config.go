// Package config provides configuration loading and management for siteqa.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete siteqa configuration.
type Config struct {
	Crawl   CrawlConfig   `yaml:"crawl"`
	Chunk   ChunkConfig   `yaml:"chunk"`
	Embed   EmbedConfig   `yaml:"embed"`
	Model   ModelConfig   `yaml:"model"`
	Store   StoreConfig   `yaml:"store"`
	Query   QueryConfig   `yaml:"query"`
	Webhook WebhookConfig `yaml:"webhook"`
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
}

// CrawlConfig bounds site discovery.
type CrawlConfig struct {
	// MaxDepth is the link-following bound; seeds are depth 0.
	MaxDepth int `yaml:"max_depth"`
	// MaxConcurrency bounds in-flight fetches (0 = unbounded).
	MaxConcurrency int `yaml:"max_concurrency"`
	// RequestDelay is an optional pacing sleep between fetch dispatches.
	RequestDelay time.Duration `yaml:"request_delay"`
	// FetchTimeout bounds one page fetch.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// PageTypes are the path filters links must match.
	PageTypes []string `yaml:"page_types"`
	// AllowPrivate disables SSRF checks; for local development only.
	AllowPrivate bool `yaml:"allow_private"`
}

// ChunkConfig sets the token window geometry.
type ChunkConfig struct {
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// EmbedConfig selects the embedding backend.
type EmbedConfig struct {
	// Endpoint is the Ollama API base URL.
	Endpoint string `yaml:"endpoint"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions is the vector width the model produces.
	Dimensions int `yaml:"dimensions"`
	// Timeout bounds one embedding request.
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig configures the generative model.
type ModelConfig struct {
	// Provider is "ollama", "openai", or "anthropic".
	Provider string `yaml:"provider"`
	// Name is the model to use.
	Name string `yaml:"name"`
	// Endpoint overrides the provider's default API URL.
	Endpoint string `yaml:"endpoint"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for model responses.
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the vector store backend.
type StoreConfig struct {
	// DSN is the Postgres connection string. Empty selects the
	// in-memory store. The SITEQA_DATABASE_URL environment variable
	// takes precedence.
	DSN string `yaml:"dsn"`
}

// QueryConfig tunes retrieval.
type QueryConfig struct {
	// TopK is the retrieval depth per question.
	TopK int `yaml:"top_k"`
	// MaxConcurrent bounds concurrent batch questions (0 = unbounded).
	MaxConcurrent int `yaml:"max_concurrent"`
}

// WebhookConfig sets the delivery retry policy.
type WebhookConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ServerConfig configures the REST API.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
}

// NATSConfig configures the optional JetStream job queue.
type NATSConfig struct {
	// URL is the NATS server URL (empty = run jobs in-process).
	URL string `yaml:"url"`
	// Stream is the JetStream stream name for ingest jobs.
	Stream string `yaml:"stream"`
	// Consumer is the durable consumer name.
	Consumer string `yaml:"consumer"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Crawl: CrawlConfig{
			MaxDepth:       2,
			MaxConcurrency: 8,
			FetchTimeout:   30 * time.Second,
			PageTypes:      []string{"products", "solutions"},
		},
		Chunk: ChunkConfig{
			MaxTokens:     400,
			OverlapTokens: 80,
		},
		Embed: EmbedConfig{
			Endpoint:   "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    30 * time.Second,
		},
		Model: ModelConfig{
			Provider:    "ollama",
			Name:        "qwen2.5:7b",
			Endpoint:    "http://localhost:11434/v1",
			Temperature: 0,
			Timeout:     2 * time.Minute,
		},
		Store: StoreConfig{
			DSN: "",
		},
		Query: QueryConfig{
			TopK:          10,
			MaxConcurrent: 8,
		},
		Webhook: WebhookConfig{
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: 5 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		NATS: NATSConfig{
			URL:      "",
			Stream:   "SITEQA_JOBS",
			Consumer: "siteqa-worker",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be non-negative")
	}
	if c.Crawl.MaxConcurrency < 0 {
		return fmt.Errorf("crawl.max_concurrency must be non-negative")
	}
	if c.Chunk.MaxTokens <= 0 {
		return fmt.Errorf("chunk.max_tokens must be positive")
	}
	if c.Chunk.OverlapTokens < 0 || c.Chunk.OverlapTokens >= c.Chunk.MaxTokens {
		return fmt.Errorf("chunk.overlap_tokens must be in [0, max_tokens)")
	}
	if c.Embed.Model == "" {
		return fmt.Errorf("embed.model is required")
	}
	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("embed.dimensions must be positive")
	}
	if c.Model.Provider == "" {
		return fmt.Errorf("model.provider is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive")
	}
	if c.Webhook.MaxRetries < 0 {
		return fmt.Errorf("webhook.max_retries must be non-negative")
	}
	return nil
}

// DatabaseDSN returns the Postgres connection string, preferring the
// SITEQA_DATABASE_URL environment variable over the config file.
func (c *Config) DatabaseDSN() string {
	if dsn := os.Getenv("SITEQA_DATABASE_URL"); dsn != "" {
		return dsn
	}
	return c.Store.DSN
}

// LoadFromFile loads configuration from a YAML file, layered over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Crawl.MaxDepth != 0 {
		c.Crawl.MaxDepth = other.Crawl.MaxDepth
	}
	if other.Crawl.MaxConcurrency != 0 {
		c.Crawl.MaxConcurrency = other.Crawl.MaxConcurrency
	}
	if other.Crawl.RequestDelay != 0 {
		c.Crawl.RequestDelay = other.Crawl.RequestDelay
	}
	if other.Crawl.FetchTimeout != 0 {
		c.Crawl.FetchTimeout = other.Crawl.FetchTimeout
	}
	if len(other.Crawl.PageTypes) > 0 {
		c.Crawl.PageTypes = other.Crawl.PageTypes
	}
	if other.Crawl.AllowPrivate {
		c.Crawl.AllowPrivate = true
	}

	if other.Chunk.MaxTokens != 0 {
		c.Chunk.MaxTokens = other.Chunk.MaxTokens
	}
	if other.Chunk.OverlapTokens != 0 {
		c.Chunk.OverlapTokens = other.Chunk.OverlapTokens
	}

	if other.Embed.Endpoint != "" {
		c.Embed.Endpoint = other.Embed.Endpoint
	}
	if other.Embed.Model != "" {
		c.Embed.Model = other.Embed.Model
	}
	if other.Embed.Dimensions != 0 {
		c.Embed.Dimensions = other.Embed.Dimensions
	}
	if other.Embed.Timeout != 0 {
		c.Embed.Timeout = other.Embed.Timeout
	}

	if other.Model.Provider != "" {
		c.Model.Provider = other.Model.Provider
	}
	if other.Model.Name != "" {
		c.Model.Name = other.Model.Name
	}
	if other.Model.Endpoint != "" {
		c.Model.Endpoint = other.Model.Endpoint
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}

	if other.Store.DSN != "" {
		c.Store.DSN = other.Store.DSN
	}

	if other.Query.TopK != 0 {
		c.Query.TopK = other.Query.TopK
	}
	if other.Query.MaxConcurrent != 0 {
		c.Query.MaxConcurrent = other.Query.MaxConcurrent
	}

	if other.Webhook.Timeout != 0 {
		c.Webhook.Timeout = other.Webhook.Timeout
	}
	if other.Webhook.MaxRetries != 0 {
		c.Webhook.MaxRetries = other.Webhook.MaxRetries
	}
	if other.Webhook.RetryDelay != 0 {
		c.Webhook.RetryDelay = other.Webhook.RetryDelay
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Stream != "" {
		c.NATS.Stream = other.NATS.Stream
	}
	if other.NATS.Consumer != "" {
		c.NATS.Consumer = other.NATS.Consumer
	}
}
