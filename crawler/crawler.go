// Package crawler discovers and fetches site pages within a depth and
// page-type boundary.
package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/siteqa/siteqa/weburl"
)

// Default crawl limits.
const (
	DefaultMaxDepth       = 2
	DefaultMaxConcurrency = 8
	DefaultFetchTimeout   = 30 * time.Second
	DefaultMaxContentSize = 10 * 1024 * 1024 // 10MB
	DefaultUserAgent      = "siteqa-crawler/1.0"
)

// HTMLFragment is one fetched HTML unit belonging to a logical page.
type HTMLFragment struct {
	URL   string
	HTML  []byte
	Index int
}

// PageRecord is produced once per successfully fetched page and is
// immutable afterwards.
type PageRecord struct {
	URL       string
	Title     string
	PageType  string
	Fragments []HTMLFragment
	ScrapedAt time.Time
}

// Error kinds recorded for failed fetches.
const (
	ErrKindNotFound  = "http_404"
	ErrKindHTTPError = "http_error"
	ErrKindException = "fetch_exception"
)

// FetchError records a single page failure. Traversal continues past it;
// the failed page's outbound links are never explored.
type FetchError struct {
	URL    string
	Status int
	Kind   string
	Err    error
}

// Result holds everything one crawl produced. Pages may arrive out of
// discovery order when fetches run concurrently.
type Result struct {
	Pages  []PageRecord
	Errors []FetchError

	// Dequeued is the number of distinct normalized URLs taken off the
	// frontier. len(Pages) + len(Errors) == Dequeued.
	Dequeued int
}

// Options configures a crawl.
type Options struct {
	// MaxDepth bounds link-following; seeds are depth 0.
	MaxDepth int

	// MaxConcurrency bounds in-flight fetches. 0 means unbounded.
	MaxConcurrency int

	// RequestDelay is an optional pacing sleep before each fetch dispatch.
	RequestDelay time.Duration

	FetchTimeout   time.Duration
	MaxContentSize int64
	UserAgent      string

	// AllowPrivate disables SSRF checks for local test servers.
	AllowPrivate bool
}

func (o Options) withDefaults() Options {
	if o.MaxDepth == 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.FetchTimeout == 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.MaxContentSize == 0 {
		o.MaxContentSize = DefaultMaxContentSize
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	return o
}

// Crawler walks a site depth-first from seed URLs, fetching pages whose
// paths fall inside the configured page types.
type Crawler struct {
	fetcher *Fetcher
	opts    Options
	logger  *slog.Logger
}

// New creates a Crawler. A zero Options value gets sensible defaults; set
// MaxConcurrency explicitly to bound fetch fan-out (the unbounded legacy
// behavior remains available as MaxConcurrency 0).
func New(opts Options, logger *slog.Logger) *Crawler {
	opts = opts.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		fetcher: NewFetcher(opts.FetchTimeout, opts.UserAgent, opts.MaxContentSize, opts.AllowPrivate),
		opts:    opts,
		logger:  logger,
	}
}

// crawlState is the shared mutable state of one crawl.
type crawlState struct {
	mu       sync.Mutex
	visited  map[string]bool
	pages    []PageRecord
	errors   []FetchError
	dequeued int
}

// markVisited returns false if the normalized URL was already dequeued.
func (s *crawlState) markVisited(normalized string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[normalized] {
		return false
	}
	s.visited[normalized] = true
	s.dequeued++
	return true
}

// Crawl walks from the seeds and returns every fetched page plus the
// per-page failures. Seeds are always fetched regardless of filters;
// discovered links must match a page-type filter, stay on the same host,
// and remain within MaxDepth. A page failure never halts traversal.
func (c *Crawler) Crawl(ctx context.Context, seeds []string, pageTypes []string) (*Result, error) {
	filter := weburl.NewPathFilter(pageTypes)
	state := &crawlState{visited: make(map[string]bool)}

	var sem chan struct{}
	if c.opts.MaxConcurrency > 0 {
		sem = make(chan struct{}, c.opts.MaxConcurrency)
	}

	var wg sync.WaitGroup
	for _, seed := range seeds {
		wg.Add(1)
		go c.visit(ctx, seed, 0, filter, state, sem, &wg)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.logger.Info("crawl complete",
		"pages", len(state.pages),
		"failures", len(state.errors),
		"dequeued", state.dequeued)

	return &Result{
		Pages:    state.pages,
		Errors:   state.errors,
		Dequeued: state.dequeued,
	}, nil
}

func (c *Crawler) visit(ctx context.Context, pageURL string, depth int, filter *weburl.PathFilter, state *crawlState, sem chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	if ctx.Err() != nil {
		return
	}

	normalized := weburl.Normalize(pageURL)
	if !state.markVisited(normalized) {
		return
	}

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			return
		}
	}

	if c.opts.RequestDelay > 0 {
		select {
		case <-time.After(c.opts.RequestDelay):
		case <-ctx.Done():
			return
		}
	}

	result, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		ferr := FetchError{URL: pageURL, Kind: ErrKindException, Err: err}
		if result != nil && result.StatusCode != 0 {
			ferr.Status = result.StatusCode
			ferr.Kind = ErrKindHTTPError
			if result.StatusCode == http.StatusNotFound {
				ferr.Kind = ErrKindNotFound
			}
		}

		c.logger.Warn("page fetch failed", "url", pageURL, "depth", depth, "kind", ferr.Kind, "error", err)

		state.mu.Lock()
		state.errors = append(state.errors, ferr)
		state.mu.Unlock()
		return
	}

	title, links := parsePage(result.Body, pageURL)

	record := PageRecord{
		URL:      pageURL,
		Title:    title,
		PageType: filter.PageType(pageURL),
		Fragments: []HTMLFragment{
			{URL: pageURL, HTML: result.Body, Index: 0},
		},
		ScrapedAt: time.Now().UTC(),
	}

	state.mu.Lock()
	state.pages = append(state.pages, record)
	state.mu.Unlock()

	c.logger.Debug("page fetched", "url", pageURL, "depth", depth, "links", len(links))

	if depth+1 > c.opts.MaxDepth {
		return
	}

	for _, link := range links {
		if !sameHost(pageURL, link) {
			continue
		}
		if !filter.Matches(link) {
			continue
		}
		wg.Add(1)
		go c.visit(ctx, link, depth+1, filter, state, sem, wg)
	}
}
