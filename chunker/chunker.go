// Package chunker splits extracted documents into overlapping token windows.
package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/siteqa/siteqa/extract"
	"github.com/siteqa/siteqa/weburl"
)

// encodingName is the tokenizer used for chunk boundaries. It matches the
// encoding of the embedding and generation models we target.
const encodingName = "cl100k_base"

// Chunk is a retrieval unit carrying enough metadata to cite its source.
type Chunk struct {
	// ID is stable across re-ingestion runs: slug of the normalized page
	// URL plus the chunk index.
	ID string

	URL      string
	Title    string
	PageType string

	// Index is the zero-based position of this chunk within its page.
	Index int

	Text       string
	TokenCount int
}

// Config holds chunking configuration.
type Config struct {
	// MaxTokens is the window size in tokens.
	MaxTokens int

	// OverlapTokens is how many tokens consecutive windows share.
	OverlapTokens int
}

// DefaultConfig returns the standard window size and overlap.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     400,
		OverlapTokens: 80,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("MaxTokens must be positive, got %d", c.MaxTokens)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("OverlapTokens must be non-negative, got %d", c.OverlapTokens)
	}
	if c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("OverlapTokens (%d) must be less than MaxTokens (%d)", c.OverlapTokens, c.MaxTokens)
	}
	return nil
}

// Chunker splits document text into overlapping token windows.
type Chunker struct {
	config   Config
	encoding *tiktoken.Tiktoken
}

// New creates a new Chunker with the given configuration.
// Returns an error if the configuration is invalid or the tokenizer
// vocabulary cannot be loaded.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxTokens == 0 {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", encodingName, err)
	}
	return &Chunker{config: cfg, encoding: enc}, nil
}

// MustNew creates a new Chunker, panicking on failure.
// Use for known-good configurations.
func MustNew(cfg Config) *Chunker {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// NewDefault creates a Chunker with default configuration.
func NewDefault() *Chunker {
	return MustNew(DefaultConfig())
}

// Chunk splits a document into token windows of at most MaxTokens tokens.
// Consecutive windows share exactly OverlapTokens tokens; the final window
// may be shorter. Chunking is deterministic: the same document always
// produces the same chunks with the same IDs.
func (c *Chunker) Chunk(doc *extract.Document) []Chunk {
	tokens := c.encoding.Encode(doc.Text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	stride := c.config.MaxTokens - c.config.OverlapTokens

	var chunks []Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + c.config.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		window := tokens[start:end]
		chunks = append(chunks, Chunk{
			ID:         weburl.ChunkID(doc.URL, len(chunks)),
			URL:        doc.URL,
			Title:      doc.Title,
			PageType:   doc.PageType,
			Index:      len(chunks),
			Text:       c.encoding.Decode(window),
			TokenCount: len(window),
		})

		if end == len(tokens) {
			break
		}
	}

	return chunks
}

// CountTokens returns the token count of text under the chunker's encoding.
func (c *Chunker) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}
