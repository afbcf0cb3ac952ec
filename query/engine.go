// Package query answers questions against the indexed corpus.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/siteqa/siteqa/embed"
	"github.com/siteqa/siteqa/llm"
	"github.com/siteqa/siteqa/metrics"
	"github.com/siteqa/siteqa/vectorstore"
)

// DefaultTopK is the number of nearest chunks retrieved per question.
const DefaultTopK = 10

// maxCitations caps how many sources an answer reports.
const maxCitations = 3

// snippetLength caps citation snippet size in characters.
const snippetLength = 180

// systemPrompt frames every generation request.
const systemPrompt = "You provide concise, accurate answers with citations."

// emptyCorpusAnswer is returned without calling the model when nothing is
// indexed.
const emptyCorpusAnswer = "I don't know. No information is available in the knowledge base. Please ensure data has been ingested."

// Citation attributes part of an answer to a source page.
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Metrics records per-question timing, token, and cost figures.
type Metrics struct {
	TotalLatency  time.Duration `json:"total_latency"`
	RetrievalTime time.Duration `json:"retrieval_time"`
	LLMTime       time.Duration `json:"llm_time"`
	PostTime      time.Duration `json:"post_time"`
	DocsRetrieved int           `json:"docs_retrieved"`
	DocsUsed      int           `json:"docs_used"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	EstimatedCost float64       `json:"estimated_cost_usd"`
}

// Answer is the complete result for one question. Err is set when
// generation failed; a failed question never aborts its batch siblings.
type Answer struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Metrics   Metrics    `json:"metrics"`
	Err       error      `json:"-"`
}

// Options configures an Engine.
type Options struct {
	// TopK is the retrieval depth. 0 means DefaultTopK.
	TopK int

	// MaxConcurrent bounds concurrent batch questions. 0 means unbounded.
	MaxConcurrent int
}

// Engine is a long-lived service object answering questions against shared
// collaborator handles. Construct once at process start; safe for
// concurrent use when its collaborators are.
type Engine struct {
	embedder embed.Embedder
	store    vectorstore.Store
	client   *llm.Client
	opts     Options
	collect  *metrics.Metrics
	logger   *slog.Logger
}

// New creates an Engine. collect may be nil.
func New(embedder embed.Embedder, store vectorstore.Store, client *llm.Client, opts Options, collect *metrics.Metrics, logger *slog.Logger) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if collect == nil {
		collect = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		client:   client,
		opts:     opts,
		collect:  collect,
		logger:   logger,
	}
}

// Query answers a single question. Generation failures are reported in
// Answer.Err rather than a bare error so batch callers keep per-question
// results uniform.
func (e *Engine) Query(ctx context.Context, question string) Answer {
	t0 := time.Now()
	e.collect.QueriesTotal.Inc()

	answer := Answer{Question: question}

	retrievalStart := time.Now()
	matches, err := e.retrieve(ctx, question)
	answer.Metrics.RetrievalTime = time.Since(retrievalStart)
	if err != nil {
		answer.Err = fmt.Errorf("retrieval: %w", err)
		answer.Metrics.TotalLatency = time.Since(t0)
		e.collect.QueryErrors.Inc()
		return answer
	}

	answer.Metrics.DocsRetrieved = len(matches)
	e.collect.RetrievalDocs.Observe(float64(len(matches)))

	// Nothing indexed yet: short-circuit with the canned answer instead
	// of sending the model an empty context.
	if len(matches) == 0 {
		e.logger.Warn("no documents retrieved, corpus may be empty", "question", truncate(question, 100))
		answer.Answer = emptyCorpusAnswer
		answer.Metrics.TotalLatency = time.Since(t0)
		return answer
	}

	prompt := buildPrompt(question, matches)

	llmStart := time.Now()
	gen, err := e.client.Generate(ctx, systemPrompt, prompt)
	answer.Metrics.LLMTime = time.Since(llmStart)
	if err != nil {
		answer.Err = fmt.Errorf("generation: %w", err)
		answer.Metrics.TotalLatency = time.Since(t0)
		e.collect.QueryErrors.Inc()
		return answer
	}

	postStart := time.Now()
	answer.Answer = gen.Text
	answer.Citations = buildCitations(matches)
	answer.Metrics.PostTime = time.Since(postStart)

	answer.Metrics.DocsUsed = len(answer.Citations)
	answer.Metrics.InputTokens = gen.InputTokens
	answer.Metrics.OutputTokens = gen.OutputTokens
	answer.Metrics.EstimatedCost = llm.EstimateCost(e.client.Model(), gen.InputTokens, gen.OutputTokens)
	answer.Metrics.TotalLatency = time.Since(t0)

	e.collect.QueryLatency.Observe(answer.Metrics.TotalLatency.Seconds())
	e.collect.TokensGenerated.Add(float64(gen.OutputTokens))

	e.logger.Info("question answered",
		"question", truncate(question, 100),
		"docs_retrieved", answer.Metrics.DocsRetrieved,
		"citations", len(answer.Citations),
		"latency", answer.Metrics.TotalLatency)

	return answer
}

func (e *Engine) retrieve(ctx context.Context, question string) ([]vectorstore.Match, error) {
	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one question", len(vectors))
	}
	return e.store.Query(ctx, vectors[0], e.opts.TopK)
}

// BatchMetrics aggregates a batch: sums of per-question figures plus the
// wall-clock span of the whole batch.
type BatchMetrics struct {
	TotalLatency  time.Duration `json:"total_latency"`
	RetrievalTime time.Duration `json:"retrieval_time"`
	LLMTime       time.Duration `json:"llm_time"`
	InputTokens   int           `json:"input_tokens"`
	OutputTokens  int           `json:"output_tokens"`
	EstimatedCost float64       `json:"estimated_cost_usd"`
	Questions     int           `json:"questions"`
	Failed        int           `json:"failed"`
}

// BatchQuery answers a list of questions, sequentially or concurrently.
// Results always come back in input order regardless of completion order.
// Blank questions are dropped before dispatch.
func (e *Engine) BatchQuery(ctx context.Context, questions []string, concurrent bool) ([]Answer, BatchMetrics) {
	trimmed := make([]string, 0, len(questions))
	for _, q := range questions {
		if s := strings.TrimSpace(q); s != "" {
			trimmed = append(trimmed, s)
		}
	}

	start := time.Now()
	answers := make([]Answer, len(trimmed))

	if concurrent {
		var sem chan struct{}
		if e.opts.MaxConcurrent > 0 {
			sem = make(chan struct{}, e.opts.MaxConcurrent)
		}

		var wg sync.WaitGroup
		for i, q := range trimmed {
			wg.Add(1)
			go func(i int, q string) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				answers[i] = e.Query(ctx, q)
			}(i, q)
		}
		wg.Wait()
	} else {
		for i, q := range trimmed {
			answers[i] = e.Query(ctx, q)
		}
	}

	agg := BatchMetrics{
		TotalLatency: time.Since(start),
		Questions:    len(trimmed),
	}
	for _, a := range answers {
		agg.RetrievalTime += a.Metrics.RetrievalTime
		agg.LLMTime += a.Metrics.LLMTime
		agg.InputTokens += a.Metrics.InputTokens
		agg.OutputTokens += a.Metrics.OutputTokens
		agg.EstimatedCost += a.Metrics.EstimatedCost
		if a.Err != nil {
			agg.Failed++
		}
	}

	return answers, agg
}

// buildPrompt assembles the retrieved chunks into a numbered-source prompt.
func buildPrompt(question string, matches []vectorstore.Match) string {
	var sources strings.Builder
	for i, m := range matches {
		if i > 0 {
			sources.WriteString("\n\n")
		}
		fmt.Fprintf(&sources, "[Source %d] %s - %s\n%s", i+1, m.Metadata.Title, m.Metadata.URL, m.Text)
	}

	return "You are a knowledgeable assistant. Answer the user's question based on the provided sources. " +
		"Use the information from the sources to construct a helpful and informative answer.\n\n" +
		"Instructions:\n" +
		"- Synthesize information from the sources to answer the question thoroughly\n" +
		"- If sources contain partial information, provide what's available and explain the topic based on that context\n" +
		"- Do not include citation markers like [1] or [Source 1] in your answer\n" +
		"- Write in a clear, natural, and confident tone\n" +
		"- Focus on being helpful and informative\n\n" +
		"Sources:\n" + sources.String() + "\n\n" +
		"Question: " + question + "\n\n"
}

// buildCitations reports the distinct source URLs among the matches in
// retrieval rank order, capped at maxCitations. Deterministic for a given
// retrieved set.
func buildCitations(matches []vectorstore.Match) []Citation {
	seen := make(map[string]bool, len(matches))
	citations := make([]Citation, 0, maxCitations)

	for _, m := range matches {
		if len(citations) == maxCitations {
			break
		}
		if m.Metadata.URL == "" || seen[m.Metadata.URL] {
			continue
		}
		seen[m.Metadata.URL] = true

		title := m.Metadata.Title
		if title == "" {
			title = "Source"
		}
		citations = append(citations, Citation{
			URL:     m.Metadata.URL,
			Title:   title,
			Snippet: snippet(m.Text),
		})
	}
	return citations
}

func snippet(text string) string {
	s := strings.TrimSpace(text)
	if len(s) > snippetLength {
		return s[:snippetLength-3] + "..."
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
