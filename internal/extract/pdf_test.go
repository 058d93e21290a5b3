package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/docchat/internal/testutil"
)

func TestIsPDF(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n...")) {
		t.Error("PDF signature not detected")
	}
	if IsPDF([]byte("hello world")) || IsPDF(nil) {
		t.Error("non-PDF detected as PDF")
	}
}

func TestExtractPages_twoPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	content := testutil.BuildPDF("The sky is blue.", "Water boils at 100 degrees.")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	pages, err := NewPDFExtractor().ExtractPages(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].PageNumber == nil || *pages[0].PageNumber != 1 {
		t.Errorf("page 0 number = %v, want 1", pages[0].PageNumber)
	}
	if pages[1].PageNumber == nil || *pages[1].PageNumber != 2 {
		t.Errorf("page 1 number = %v, want 2", pages[1].PageNumber)
	}
	if !strings.Contains(pages[0].Text, "sky") {
		t.Errorf("page 1 text = %q", pages[0].Text)
	}
	if !strings.Contains(pages[1].Text, "boils") {
		t.Errorf("page 2 text = %q", pages[1].Text)
	}
}

func TestExtractPages_skipsBlankPages(t *testing.T) {
	content := testutil.BuildPDF("first", "", "third")
	pages, err := NewPDFExtractor().ExtractPagesBytes(context.Background(), content)
	if err != nil {
		t.Fatalf("ExtractPagesBytes: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if *pages[1].PageNumber != 3 {
		t.Errorf("second non-blank page number = %d, want 3", *pages[1].PageNumber)
	}
}

func TestExtractPages_loadErrors(t *testing.T) {
	dir := t.TempDir()
	notPDF := filepath.Join(dir, "notes.pdf")
	if err := os.WriteFile(notPDF, []byte("just some text"), 0600); err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(dir, "truncated.pdf")
	if err := os.WriteFile(truncated, []byte("%PDF-1.4\n1 0 obj\n<<"), 0600); err != nil {
		t.Fatal(err)
	}

	e := NewPDFExtractor()
	for _, path := range []string{filepath.Join(dir, "missing.pdf"), notPDF, truncated} {
		_, err := e.ExtractPages(context.Background(), path)
		if !errors.Is(err, ErrLoad) {
			t.Errorf("ExtractPages(%s) error = %v, want ErrLoad", filepath.Base(path), err)
		}
	}
}
