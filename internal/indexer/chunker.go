// Package indexer provides document chunking and the ingestion worker.
package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/docchat/internal/models"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 50
)

// Span is one chunk as a rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping character chunks. A cut prefers a paragraph
// break, then a line break, then any whitespace inside the boundary window that ends
// at the hard limit; otherwise the text is cut at exactly chunkSize characters.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	window       int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithBoundaryWindow sets how far back (in characters) from the hard limit a cut may
// move to land on a natural boundary. Negative values disable boundary snapping.
func WithBoundaryWindow(n int) ChunkerOption {
	return func(c *Chunker) { c.window = n }
}

// NewChunker creates a chunker with the given size and overlap in characters.
// Size <= 0 uses DefaultChunkSize; overlap < 0 becomes 0 and overlap >= size becomes size/4.
// The boundary window defaults to size/5.
func NewChunker(chunkSize, chunkOverlap int, opts ...ChunkerOption) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	c := &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		window:       chunkSize / 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.window < 0 {
		c.window = 0
	}
	return c
}

// Size returns the effective chunk size.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the effective overlap.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Split returns the chunk spans of text. Consecutive spans share exactly Overlap()
// characters, so dropping the first Overlap() characters of every span after the first
// and concatenating reconstructs text. Empty or whitespace-only text yields nil.
func (c *Chunker) Split(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	var spans []Span
	start := 0
	for {
		if n-start <= c.chunkSize {
			return append(spans, Span{Start: start, End: n, Text: string(runes[start:n])})
		}
		end := c.cutPoint(runes, start)
		spans = append(spans, Span{Start: start, End: end, Text: string(runes[start:end])})
		start = end - c.chunkOverlap
	}
}

// cutPoint returns the exclusive end of the chunk starting at start. The result is in
// (start+overlap, start+chunkSize], so every step advances.
func (c *Chunker) cutPoint(runes []rune, start int) int {
	hard := start + c.chunkSize
	lo := hard - c.window
	if min := start + c.chunkOverlap + 1; lo < min {
		lo = min
	}
	for i := hard; i >= lo; i-- {
		if i-start >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hard; i >= lo; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := hard; i >= lo; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return hard
}

// ChunkText chunks text that has no page mapping. Page numbers are left unknown.
func (c *Chunker) ChunkText(source, text string) []*models.Chunk {
	return c.ChunkPages(source, []models.PageText{{Text: text}}, 0)
}

// ChunkPages chunks each page separately and numbers the chunks across the whole
// document starting at firstIndex. Every chunk carries its page's number.
func (c *Chunker) ChunkPages(source string, pages []models.PageText, firstIndex int) []*models.Chunk {
	var chunks []*models.Chunk
	next := firstIndex
	for _, p := range pages {
		for _, s := range c.Split(p.Text) {
			chunks = append(chunks, &models.Chunk{
				Text:           s.Text,
				SourceFilename: source,
				PageNumber:     p.PageNumber,
				ChunkIndex:     next,
			})
			next++
		}
	}
	return chunks
}
