// Package extract provides per-page text extraction from PDF documents.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/docchat/internal/models"
	"go.uber.org/zap"
)

// ErrLoad is returned when a stored document is missing, unreadable or not a valid PDF.
var ErrLoad = errors.New("document could not be loaded")

// pdfMagic is the signature every PDF file starts with.
var pdfMagic = []byte("%PDF-")

// PageExtractor returns the text of each page of the document at path.
type PageExtractor interface {
	ExtractPages(ctx context.Context, path string) ([]models.PageText, error)
}

// IsPDF reports whether content starts with the PDF signature.
func IsPDF(content []byte) bool {
	return bytes.HasPrefix(content, pdfMagic)
}

// PDFExtractor extracts page text with github.com/ledongthuc/pdf.
type PDFExtractor struct {
	logger *zap.Logger // optional
}

// Option configures a PDFExtractor.
type Option func(*PDFExtractor)

// WithLogger sets a logger for extraction warnings.
func WithLogger(l *zap.Logger) Option {
	return func(e *PDFExtractor) { e.logger = l }
}

// NewPDFExtractor returns a new PDFExtractor.
func NewPDFExtractor(opts ...Option) *PDFExtractor {
	e := &PDFExtractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractPages reads the file at path and returns its non-blank pages.
// All failures wrap ErrLoad.
func (e *PDFExtractor) ExtractPages(ctx context.Context, path string) ([]models.PageText, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %w", ErrLoad, err)
	}
	return e.ExtractPagesBytes(ctx, content)
}
