// Package extract converts raw page HTML into clean text for chunking and
// indexing. Extraction is best-effort: a readability pass isolates the main
// article first, and a structural fallback prunes boilerplate when
// readability finds nothing usable.
package extract

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// ErrEmptyContent is returned when no usable text could be extracted.
var ErrEmptyContent = errors.New("no extractable content")

// Document is the cleaned form of a scraped page: one per successfully
// extracted PageRecord.
type Document struct {
	URL      string
	Title    string
	PageType string
	Text     string
}

// Result holds the outcome of extracting a single HTML fragment.
type Result struct {
	Title string
	Text  string
}

// Extractor turns an HTML fragment into plain text. Implementations must be
// safe for concurrent use.
type Extractor interface {
	Extract(html []byte, pageURL string) (*Result, error)
}

// ReadabilityExtractor extracts main content with go-readability, falling
// back to structural boilerplate pruning when readability yields nothing.
type ReadabilityExtractor struct {
	fallback *Converter
}

// New creates the default extractor.
func New() *ReadabilityExtractor {
	return &ReadabilityExtractor{fallback: NewConverter()}
}

// Extract returns the page title and main-content text for an HTML fragment.
func (e *ReadabilityExtractor) Extract(html []byte, pageURL string) (*Result, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = &url.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(string(html)), parsed)
	if err == nil {
		text := normalizeWhitespace(article.TextContent)
		if text != "" {
			title := strings.TrimSpace(article.Title)
			return &Result{Title: title, Text: text}, nil
		}
	}

	// Readability found nothing; prune boilerplate and convert what remains.
	converted, err := e.fallback.Convert(html)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(converted.Markdown) == "" {
		return nil, ErrEmptyContent
	}
	return &Result{Title: converted.Title, Text: converted.Markdown}, nil
}

// normalizeWhitespace collapses runs of blank lines and intra-line whitespace
// while preserving paragraph breaks.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
