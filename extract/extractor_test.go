package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><head><title>Widget Overview</title></head><body>
<nav class="navbar"><a href="/">Home</a><a href="/products">Products</a></nav>
<article>
<h1>Widget Overview</h1>
<p>The widget processes payments across forty currencies with automatic
settlement and reconciliation. It exposes a REST API and webhooks for
lifecycle events.</p>
<p>Pricing starts at ten dollars per month for the starter tier.</p>
</article>
<footer>Copyright 2026</footer>
</body></html>`

func TestExtract_ArticleContent(t *testing.T) {
	e := New()

	res, err := e.Extract([]byte(articleHTML), "https://example.com/products/widget")
	require.NoError(t, err)

	assert.Contains(t, res.Text, "forty currencies")
	assert.Contains(t, res.Text, "ten dollars")
	assert.NotContains(t, res.Text, "Copyright 2026", "footer boilerplate is stripped")
}

func TestExtract_FallbackOnBareMarkup(t *testing.T) {
	// No article semantics at all; readability tends to reject this, the
	// structural fallback should still recover the body text.
	bare := `<html><head><title>Plain</title></head><body><div><p>Settlement happens nightly at 02:00 UTC for all merchant accounts in good standing with completed onboarding.</p></div></body></html>`

	e := New()
	res, err := e.Extract([]byte(bare), "https://example.com/docs")
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Settlement happens nightly")
}

func TestExtract_EmptyHTML(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte(""), "https://example.com/empty")
	assert.Error(t, err)
}

func TestExtract_ScriptOnlyHTML(t *testing.T) {
	e := New()
	_, err := e.Extract([]byte("<html><body><script>var x=1;</script></body></html>"), "https://example.com/js")
	assert.Error(t, err)
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "Line  one\t with   gaps\n\n\n\nLine two\n   \nLine three"
	want := "Line one with gaps\n\nLine two\n\nLine three"
	assert.Equal(t, want, normalizeWhitespace(in))
}

func TestConverter_PrunesBoilerplate(t *testing.T) {
	c := NewConverter()

	htmlDoc := `<html><head><title>Doc</title></head><body>
<nav>Navigation links</nav>
<div class="sidebar">Sidebar junk</div>
<div><h1>Real Heading</h1><p>Body paragraph with facts.</p></div>
</body></html>`

	res, err := c.Convert([]byte(htmlDoc))
	require.NoError(t, err)

	assert.Equal(t, "Doc", res.Title)
	assert.Contains(t, res.Markdown, "Real Heading")
	assert.Contains(t, res.Markdown, "Body paragraph")
	assert.False(t, strings.Contains(res.Markdown, "Sidebar junk"))
	assert.False(t, strings.Contains(res.Markdown, "Navigation links"))
}

func TestConverter_PrefersMainElement(t *testing.T) {
	c := NewConverter()

	htmlDoc := `<html><body>
<div>Outside</div>
<main><p>Inside main content.</p></main>
</body></html>`

	res, err := c.Convert([]byte(htmlDoc))
	require.NoError(t, err)

	assert.Contains(t, res.Markdown, "Inside main content")
	assert.NotContains(t, res.Markdown, "Outside")
}

func TestExtractHTMLTitle(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "simple title",
			html:     "<html><head><title>My Page</title></head><body></body></html>",
			expected: "My Page",
		},
		{
			name:     "title with whitespace",
			html:     "<html><head><title>  Spaced Title  </title></head></html>",
			expected: "Spaced Title",
		},
		{
			name:     "no title",
			html:     "<html><head></head><body>Content</body></html>",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractHTMLTitle([]byte(tt.html)))
		})
	}
}
