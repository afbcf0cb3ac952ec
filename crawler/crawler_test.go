package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSite serves a fixed page graph and counts fetches per path.
type testSite struct {
	srv     *httptest.Server
	fetches map[string]*atomic.Int64
}

func newTestSite(t *testing.T, pages map[string]string) *testSite {
	t.Helper()
	site := &testSite{fetches: make(map[string]*atomic.Int64)}
	for path := range pages {
		site.fetches[path] = &atomic.Int64{}
	}

	site.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if counter, tracked := site.fetches[r.URL.Path]; tracked {
			counter.Add(1)
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *testSite) url(path string) string {
	return s.srv.URL + path
}

func newTestCrawler(opts Options) *Crawler {
	opts.AllowPrivate = true
	return New(opts, nil)
}

func pageURLs(result *Result) []string {
	urls := make([]string, 0, len(result.Pages))
	for _, p := range result.Pages {
		urls = append(urls, p.URL)
	}
	sort.Strings(urls)
	return urls
}

func TestCrawl_DepthAndFilterBoundary(t *testing.T) {
	// A links to B and C (both under /products/); B links to D.
	// With MaxDepth 1 only A, B, C are fetched; D is out of depth.
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/products/b">B</a>
			<a href="/products/c">C</a>
			<a href="/about">About</a>
		</body></html>`,
		"/products/b": `<html><body><a href="/products/d">D</a></body></html>`,
		"/products/c": `<html><body>C page</body></html>`,
		"/products/d": `<html><body>D page</body></html>`,
		"/about":      `<html><body>not a product</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/")}, []string{"products"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		site.url("/"),
		site.url("/products/b"),
		site.url("/products/c"),
	}, pageURLs(result))

	assert.Zero(t, site.fetches["/products/d"].Load(), "depth 2 page must never be fetched")
	assert.Zero(t, site.fetches["/about"].Load(), "filtered-out page must never be fetched")
	assert.Empty(t, result.Errors)
}

func TestCrawl_NormalizationDedup(t *testing.T) {
	// Trailing slash, fragment, and language-prefix variants of the same
	// page collapse to one visit.
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/products/x">one</a>
			<a href="/products/x/">two</a>
			<a href="/products/x#pricing">three</a>
			<a href="/en/products/x">four</a>
		</body></html>`,
		"/products/x":    `<html><body>x</body></html>`,
		"/products/x/":   `<html><body>x</body></html>`,
		"/en/products/x": `<html><body>x</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/")}, []string{"products"})
	require.NoError(t, err)

	total := site.fetches["/products/x"].Load() +
		site.fetches["/products/x/"].Load() +
		site.fetches["/en/products/x"].Load()
	assert.Equal(t, int64(1), total, "equivalent URLs must fetch exactly once")
	assert.Len(t, result.Pages, 2)
}

func TestCrawl_FailureDoesNotHaltTraversal(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/products/missing">broken</a>
			<a href="/products/ok">fine</a>
		</body></html>`,
		"/products/ok": `<html><body>ok</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/")}, []string{"products"})
	require.NoError(t, err)

	assert.Len(t, result.Pages, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, site.url("/products/missing"), result.Errors[0].URL)
	assert.Equal(t, ErrKindNotFound, result.Errors[0].Kind)
	assert.Equal(t, http.StatusNotFound, result.Errors[0].Status)
}

func TestCrawl_DequeuedInvariant(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/products/a">a</a>
			<a href="/products/missing">broken</a>
		</body></html>`,
		"/products/a": `<html><body>a</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/")}, []string{"products"})
	require.NoError(t, err)

	assert.Equal(t, result.Dequeued, len(result.Pages)+len(result.Errors))
}

func TestCrawl_SeedFetchedRegardlessOfFilters(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/pricing": `<html><head><title>Pricing</title></head><body>rates</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/pricing")}, []string{"products"})
	require.NoError(t, err)

	require.Len(t, result.Pages, 1)
	assert.Equal(t, "Pricing", result.Pages[0].Title)
	require.Len(t, result.Pages[0].Fragments, 1)
	assert.NotEmpty(t, result.Pages[0].Fragments[0].HTML)
}

func TestCrawl_StaysOnHost(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="https://elsewhere.example.org/products/offsite">offsite</a>
			<a href="/products/local">local</a>
		</body></html>`,
		"/products/local": `<html><body>local</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/")}, []string{"products"})
	require.NoError(t, err)

	assert.Len(t, result.Pages, 2)
	for _, p := range result.Pages {
		assert.NotContains(t, p.URL, "elsewhere.example.org")
	}
}

func TestCrawl_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		if r.URL.Path == "/" {
			fmt.Fprint(w, `<html><body>`)
			for i := 0; i < 12; i++ {
				fmt.Fprintf(w, `<a href="/products/p%d">p</a>`, i)
			}
			fmt.Fprint(w, `</body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCrawler(Options{MaxDepth: 1, MaxConcurrency: 2})
	result, err := c.Crawl(context.Background(), []string{srv.URL + "/"}, []string{"products"})
	require.NoError(t, err)

	assert.Len(t, result.Pages, 13)
	assert.LessOrEqual(t, peak.Load(), int64(2), "fetch fan-out must respect MaxConcurrency")
}

func TestCrawl_PageTypeMetadata(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":                   `<html><body><a href="/products/widget">w</a></body></html>`,
		"/products/widget":    `<html><body>widget</body></html>`,
	})

	c := newTestCrawler(Options{MaxDepth: 1})
	result, err := c.Crawl(context.Background(), []string{site.url("/")}, []string{"products"})
	require.NoError(t, err)

	for _, p := range result.Pages {
		if p.URL == site.url("/products/widget") {
			assert.Equal(t, "products", p.PageType)
		}
	}
}

func TestParsePage(t *testing.T) {
	body := []byte(`<html><head><title>Home</title></head><body>
		<a href="/a">a</a>
		<a href="#frag">frag only</a>
		<a href="mailto:x@example.com">mail</a>
		<a href="https://other.example.org/b">abs</a>
	</body></html>`)

	title, links := parsePage(body, "https://example.com/")
	assert.Equal(t, "Home", title)
	assert.Equal(t, []string{
		"https://example.com/a",
		"https://other.example.org/b",
	}, links)
}

func TestSameHost(t *testing.T) {
	assert.True(t, sameHost("https://Example.com/a", "https://example.com/b"))
	assert.False(t, sameHost("https://example.com/a", "https://other.example.org/a"))
}
