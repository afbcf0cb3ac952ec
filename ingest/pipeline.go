// Package ingest orchestrates the crawl, extract, chunk, embed, and index
// stages of corpus ingestion.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/siteqa/siteqa/chunker"
	"github.com/siteqa/siteqa/crawler"
	"github.com/siteqa/siteqa/embed"
	"github.com/siteqa/siteqa/extract"
	"github.com/siteqa/siteqa/metrics"
	"github.com/siteqa/siteqa/vectorstore"
)

// Stage names used as StageDurations keys.
const (
	StageScrape     = "scrape"
	StageExtract    = "extract"
	StageChunkEmbed = "chunk_embed"
	StageIndex      = "index"
)

// embedBatchSize bounds one embedding request. Batching is an optimization;
// correctness only needs one vector per chunk in order.
const embedBatchSize = 32

// StageError records a per-page recoverable failure.
type StageError struct {
	Stage string `json:"stage"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Metrics accumulates monotonically over one run and is finalized once at
// completion.
type Metrics struct {
	PagesScraped         int
	PagesFailed          int
	TotalChunksCreated   int
	TotalTokensProcessed int
	StageDurations       map[string]time.Duration
	TotalDuration        time.Duration
	Errors               []StageError
}

// Payload renders the metrics as the JSON-friendly mapping delivered to
// webhook callbacks, durations in seconds.
func (m *Metrics) Payload() map[string]any {
	stages := make(map[string]float64, len(m.StageDurations))
	for name, d := range m.StageDurations {
		stages[name] = d.Seconds()
	}
	return map[string]any{
		"pages_scraped":          m.PagesScraped,
		"pages_failed":           m.PagesFailed,
		"total_chunks_created":   m.TotalChunksCreated,
		"total_tokens_processed": m.TotalTokensProcessed,
		"stage_durations":        stages,
		"total_time_seconds":     m.TotalDuration.Seconds(),
		"errors":                 m.Errors,
	}
}

// Pipeline runs ingestion against long-lived collaborators. Construct the
// collaborators once at process start and share them; the pipeline holds
// no state between runs.
type Pipeline struct {
	crawler   *crawler.Crawler
	extractor extract.Extractor
	chunker   *chunker.Chunker
	embedder  embed.Embedder
	store     vectorstore.Store
	collect   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Pipeline. collect may be nil when no metrics endpoint is
// running.
func New(c *crawler.Crawler, ex extract.Extractor, ch *chunker.Chunker, em embed.Embedder, st vectorstore.Store, collect *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if collect == nil {
		collect = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		crawler:   c,
		extractor: ex,
		chunker:   ch,
		embedder:  em,
		store:     st,
		collect:   collect,
		logger:    logger,
	}
}

// Run executes one ingestion. Scrape and extract failures are partial and
// recorded per page; an embedding or indexing failure aborts the run so a
// partially indexed corpus is never reported as success.
func (p *Pipeline) Run(ctx context.Context, seeds []string, pageTypes []string) (*Metrics, error) {
	start := time.Now()
	m := &Metrics{StageDurations: make(map[string]time.Duration)}

	// Stage 1: scrape
	scrapeStart := time.Now()
	crawlResult, err := p.crawler.Crawl(ctx, seeds, pageTypes)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}
	m.StageDurations[StageScrape] = time.Since(scrapeStart)
	m.PagesScraped = len(crawlResult.Pages)

	for _, fe := range crawlResult.Errors {
		m.PagesFailed++
		m.Errors = append(m.Errors, StageError{Stage: StageScrape, URL: fe.URL, Error: fe.Err.Error()})
	}
	p.collect.PagesScraped.Add(float64(m.PagesScraped))

	p.logger.Info("scrape complete",
		"pages", m.PagesScraped,
		"failures", len(crawlResult.Errors),
		"duration", m.StageDurations[StageScrape])

	// Stage 2: extract
	extractStart := time.Now()
	docs := make([]*extract.Document, 0, len(crawlResult.Pages))
	for _, page := range crawlResult.Pages {
		doc, err := p.extractPage(page)
		if err != nil {
			m.PagesFailed++
			m.Errors = append(m.Errors, StageError{Stage: StageExtract, URL: page.URL, Error: err.Error()})
			p.logger.Warn("extraction failed, page skipped", "url", page.URL, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	m.StageDurations[StageExtract] = time.Since(extractStart)
	p.collect.PagesFailed.Add(float64(m.PagesFailed))

	// Stage 3: chunk + embed
	chunkEmbedStart := time.Now()
	var allChunks []chunker.Chunk
	for _, doc := range docs {
		allChunks = append(allChunks, p.chunker.Chunk(doc)...)
	}
	for _, c := range allChunks {
		m.TotalTokensProcessed += c.TokenCount
	}
	m.TotalChunksCreated = len(allChunks)

	vectors, err := p.embedChunks(ctx, allChunks)
	if err != nil {
		return nil, fmt.Errorf("embedding failed, run aborted: %w", err)
	}
	m.StageDurations[StageChunkEmbed] = time.Since(chunkEmbedStart)
	p.collect.TokensProcessed.Add(float64(m.TotalTokensProcessed))

	// Stage 4: index
	indexStart := time.Now()
	for i, c := range allChunks {
		meta := vectorstore.Metadata{
			URL:        c.URL,
			Title:      c.Title,
			PageType:   c.PageType,
			ChunkIndex: c.Index,
		}
		if err := p.store.Upsert(ctx, c.ID, vectors[i], c.Text, meta); err != nil {
			return nil, fmt.Errorf("indexing failed, run aborted: %w", err)
		}
	}
	m.StageDurations[StageIndex] = time.Since(indexStart)
	p.collect.ChunksIndexed.Add(float64(m.TotalChunksCreated))

	m.TotalDuration = time.Since(start)
	p.collect.IngestDuration.Observe(m.TotalDuration.Seconds())

	p.logger.Info("ingestion complete",
		"pages_scraped", m.PagesScraped,
		"pages_failed", m.PagesFailed,
		"chunks", m.TotalChunksCreated,
		"tokens", m.TotalTokensProcessed,
		"duration", m.TotalDuration)

	return m, nil
}

// extractPage merges a page's fragments into one cleaned document.
func (p *Pipeline) extractPage(page crawler.PageRecord) (*extract.Document, error) {
	var text string
	title := page.Title

	for _, frag := range page.Fragments {
		res, err := p.extractor.Extract(frag.HTML, frag.URL)
		if err != nil {
			return nil, err
		}
		if text != "" {
			text += "\n\n"
		}
		text += res.Text
		if title == "" {
			title = res.Title
		}
	}

	if text == "" {
		return nil, extract.ErrEmptyContent
	}

	return &extract.Document{
		URL:      page.URL,
		Title:    title,
		PageType: page.PageType,
		Text:     text,
	}, nil
}

// embedChunks vectorizes chunk texts in batches, preserving chunk order.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}
