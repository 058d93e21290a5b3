package indexer

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hyperjump/docchat/internal/models"
)

// reconstruct joins spans with the overlap removed.
func reconstruct(spans []Span, overlap int) string {
	var b strings.Builder
	for i, s := range spans {
		r := []rune(s.Text)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func checkSpans(t *testing.T, c *Chunker, text string) []Span {
	t.Helper()
	spans := c.Split(text)
	if len(spans) == 0 {
		t.Fatalf("no spans for %d-char text", utf8.RuneCountInString(text))
	}
	for i, s := range spans {
		if n := utf8.RuneCountInString(s.Text); n > c.Size() {
			t.Errorf("span %d has %d chars, max %d", i, n, c.Size())
		}
		if i > 0 {
			prev := []rune(spans[i-1].Text)
			cur := []rune(s.Text)
			if string(prev[len(prev)-c.Overlap():]) != string(cur[:c.Overlap()]) {
				t.Errorf("span %d does not share exactly %d chars with span %d", i, c.Overlap(), i-1)
			}
			if s.Start != spans[i-1].End-c.Overlap() {
				t.Errorf("span %d starts at %d, want %d", i, s.Start, spans[i-1].End-c.Overlap())
			}
		}
	}
	if got := reconstruct(spans, c.Overlap()); got != text {
		t.Errorf("reconstruction mismatch:\n got %q\nwant %q", got, text)
	}
	return spans
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(500, 50)
	spans := checkSpans(t, c, "The sky is blue.")
	if len(spans) != 1 || spans[0].Text != "The sky is blue." {
		t.Errorf("got %+v", spans)
	}
}

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(500, 50)
	for _, in := range []string{"", "   ", "\n\t \n"} {
		if spans := c.Split(in); spans != nil {
			t.Errorf("Split(%q) = %v, want nil", in, spans)
		}
		if chunks := c.ChunkText("a.pdf", in); len(chunks) != 0 {
			t.Errorf("ChunkText(%q) returned %d chunks", in, len(chunks))
		}
	}
}

func TestChunker_HardCutWithoutWhitespace(t *testing.T) {
	c := NewChunker(10, 2)
	text := strings.Repeat("x", 25)
	spans := checkSpans(t, c, text)
	if spans[0].End != 10 {
		t.Errorf("first cut at %d, want hard cut at 10", spans[0].End)
	}
}

func TestChunker_PrefersParagraphBreak(t *testing.T) {
	c := NewChunker(40, 5, WithBoundaryWindow(20))
	first := "Alpha beta gamma delta epsilon."
	text := first + "\n\n" + "Zeta eta theta iota kappa lambda mu nu xi omicron."
	spans := checkSpans(t, c, text)
	if spans[0].Text != first+"\n\n" {
		t.Errorf("first chunk should end after the paragraph break, got %q", spans[0].Text)
	}
}

func TestChunker_PrefersWhitespaceOverHardCut(t *testing.T) {
	c := NewChunker(12, 2)
	spans := checkSpans(t, c, "hello world and more words here")
	if !strings.HasSuffix(spans[0].Text, " ") {
		t.Errorf("first chunk should end after whitespace, got %q", spans[0].Text)
	}
}

func TestChunker_Unicode(t *testing.T) {
	c := NewChunker(7, 2)
	checkSpans(t, c, "日本語のテキストを分割します。温度は100°Cです。")
}

func TestChunker_ClampsSettings(t *testing.T) {
	tests := []struct {
		size, overlap       int
		wantSize, wantOverl int
	}{
		{0, 0, DefaultChunkSize, 0},
		{100, -5, 100, 0},
		{100, 100, 100, 25},
		{100, 250, 100, 25},
		{1, 0, 1, 0},
	}
	for _, tt := range tests {
		c := NewChunker(tt.size, tt.overlap)
		if c.Size() != tt.wantSize || c.Overlap() != tt.wantOverl {
			t.Errorf("NewChunker(%d, %d) = size %d overlap %d, want %d %d",
				tt.size, tt.overlap, c.Size(), c.Overlap(), tt.wantSize, tt.wantOverl)
		}
	}
}

func TestChunker_PropertiesRandomText(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []rune("abcdefghij klmn\nop\n\nqrsé日 ")
	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(3000) + 1
		r := make([]rune, n)
		for i := range r {
			r[i] = alphabet[rng.Intn(len(alphabet))]
		}
		text := string(r)
		if strings.TrimSpace(text) == "" {
			continue
		}
		size := rng.Intn(200) + 1
		overlap := rng.Intn(size + 10)
		c := NewChunker(size, overlap, WithBoundaryWindow(rng.Intn(size+1)))
		checkSpans(t, c, text)
		if t.Failed() {
			t.Fatalf("failed at iteration %d (size=%d overlap=%d)", iter, size, overlap)
		}
	}
}

func TestChunker_ChunkPagesNumbersAcrossDocument(t *testing.T) {
	c := NewChunker(20, 5)
	pages := []models.PageText{
		{PageNumber: models.Page(1), Text: strings.Repeat("page one text ", 4)},
		{PageNumber: models.Page(2), Text: "short"},
		{PageNumber: nil, Text: strings.Repeat("unknown page ", 3)},
	}
	chunks := c.ChunkPages("doc.pdf", pages, 0)
	want := len(c.Split(pages[0].Text)) + len(c.Split(pages[1].Text)) + len(c.Split(pages[2].Text))
	if len(chunks) != want {
		t.Fatalf("got %d chunks, want %d", len(chunks), want)
	}
	for i, ch := range chunks {
		if ch.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, ch.ChunkIndex)
		}
		if ch.SourceFilename != "doc.pdf" {
			t.Errorf("chunk %d source = %s", i, ch.SourceFilename)
		}
	}
	if chunks[0].PageNumber == nil || *chunks[0].PageNumber != 1 {
		t.Errorf("first chunk page = %v, want 1", chunks[0].PageNumber)
	}
	last := chunks[len(chunks)-1]
	if last.PageNumber != nil {
		t.Errorf("last chunk should have unknown page, got %d", *last.PageNumber)
	}
}

func BenchmarkChunker_Split(b *testing.B) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 2000)
	c := NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Split(text)
	}
}
