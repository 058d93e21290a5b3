package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// ExtractPagesBytes returns the non-blank pages of the PDF in content, numbered from 1.
// When a page's text cannot be decoded, the whole document is extracted as a single
// page with an unknown page number instead.
func (e *PDFExtractor) ExtractPagesBytes(ctx context.Context, content []byte) (pages []models.PageText, err error) {
	if !IsPDF(content) {
		return nil, fmt.Errorf("%w: not a PDF file", ErrLoad)
	}
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed PDF: %v", ErrLoad, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %w", ErrLoad, err)
	}

	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("page text extraction failed, falling back to whole document",
					zap.Int("page", i), zap.Error(err))
			}
			return extractWhole(r)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, models.PageText{PageNumber: models.Page(i), Text: text})
	}
	return pages, nil
}

// extractWhole returns the document text as one page with an unknown page number.
func extractWhole(r *pdf.Reader) ([]models.PageText, error) {
	rd, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: extract text: %w", ErrLoad, err)
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: read text: %w", ErrLoad, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []models.PageText{{Text: string(data)}}, nil
}
