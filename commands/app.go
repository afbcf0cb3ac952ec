// Package commands implements the siteqa CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/siteqa/siteqa/chunker"
	"github.com/siteqa/siteqa/config"
	"github.com/siteqa/siteqa/crawler"
	"github.com/siteqa/siteqa/embed"
	"github.com/siteqa/siteqa/extract"
	"github.com/siteqa/siteqa/ingest"
	"github.com/siteqa/siteqa/llm"
	"github.com/siteqa/siteqa/metrics"
	"github.com/siteqa/siteqa/notify"
	"github.com/siteqa/siteqa/query"
	"github.com/siteqa/siteqa/vectorstore"
	"github.com/siteqa/siteqa/vectorstore/memory"
	"github.com/siteqa/siteqa/vectorstore/postgres"
)

// App holds the wired service graph shared by all subcommands.
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Embedder embed.Embedder
	Store    vectorstore.Store
	Client   *llm.Client
	Engine   *query.Engine
	Pipeline *ingest.Pipeline
	Notifier *notify.Notifier
	Logger   *slog.Logger
}

// NewApp builds the service graph from configuration. An empty Postgres
// DSN selects the in-memory store, which only makes sense when ingest
// and query run in the same process.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	collect := metrics.New(registry)

	var store vectorstore.Store
	if dsn := cfg.DatabaseDSN(); dsn != "" {
		pg, err := postgres.New(ctx, dsn, cfg.Embed.Dimensions, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("init vector store: %w", err)
		}
		store = pg
	} else {
		logger.Warn("no database configured, using in-memory vector store")
		store = memory.New()
	}

	embedder := embed.NewOllama(embed.OllamaConfig{
		BaseURL:    cfg.Embed.Endpoint,
		Model:      cfg.Embed.Model,
		Dimensions: cfg.Embed.Dimensions,
		Timeout:    cfg.Embed.Timeout,
	})

	temperature := cfg.Model.Temperature
	client, err := llm.NewClient(llm.Config{
		Provider:    cfg.Model.Provider,
		Model:       cfg.Model.Name,
		BaseURL:     cfg.Model.Endpoint,
		Temperature: &temperature,
		Timeout:     cfg.Model.Timeout,
	}, llm.WithLogger(logger))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create model client: %w", err)
	}

	crawl := crawler.New(crawler.Options{
		MaxDepth:       cfg.Crawl.MaxDepth,
		MaxConcurrency: cfg.Crawl.MaxConcurrency,
		RequestDelay:   cfg.Crawl.RequestDelay,
		FetchTimeout:   cfg.Crawl.FetchTimeout,
		AllowPrivate:   cfg.Crawl.AllowPrivate,
	}, logger)

	chunk, err := chunker.New(chunker.Config{
		MaxTokens:     cfg.Chunk.MaxTokens,
		OverlapTokens: cfg.Chunk.OverlapTokens,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create chunker: %w", err)
	}

	pipeline := ingest.New(crawl, extract.New(), chunk, embedder, store, collect, logger)

	engine := query.New(embedder, store, client, query.Options{
		TopK:          cfg.Query.TopK,
		MaxConcurrent: cfg.Query.MaxConcurrent,
	}, collect, logger)

	notifier := notify.New(notify.Config{
		Timeout:    cfg.Webhook.Timeout,
		MaxRetries: cfg.Webhook.MaxRetries,
		RetryDelay: cfg.Webhook.RetryDelay,
	}, collect, logger)

	return &App{
		Config:   cfg,
		Registry: registry,
		Metrics:  collect,
		Embedder: embedder,
		Store:    store,
		Client:   client,
		Engine:   engine,
		Pipeline: pipeline,
		Notifier: notifier,
		Logger:   logger,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("failed to close vector store", "error", err)
		}
	}
}

// loadConfig resolves layered configuration for a subcommand.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader().Load()
}
