// Package upload accepts PDF files, stores them, and queues them for ingestion.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/docchat/internal/extract"
	"github.com/hyperjump/docchat/internal/metrics"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/queue"
	"github.com/hyperjump/docchat/internal/storage"
	"go.uber.org/zap"
)

// ErrNotPDF is returned for uploads that are not PDF files. Nothing is stored or queued.
var ErrNotPDF = errors.New("only PDF files are allowed")

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("file too large")

// DefaultMaxBytes is the upload size limit when none is configured.
const DefaultMaxBytes = 50 << 20

// Result identifies a stored upload and its ingestion job.
type Result struct {
	Document *models.Document
	JobID    string
}

// Service stores uploads and enqueues ingestion jobs. It never waits for ingestion.
type Service struct {
	dir      string
	store    storage.Storage
	queue    queue.Queue
	maxBytes int64
	logger   *zap.Logger // optional
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMaxBytes sets the upload size limit.
func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithLogger sets a logger for upload events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records upload outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an upload service that stores files under dir.
func NewService(dir string, store storage.Storage, q queue.Queue, opts ...Option) (*Service, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	s := &Service{dir: dir, store: store, queue: q, maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxBytes returns the upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload validates that r holds a PDF, stores it as uploadDir/<id>-<filename>, records
// the document and enqueues its ingestion job.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	name := cleanFilename(filename)
	content, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		s.metrics.ObserveUpload("error")
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(content)) > s.maxBytes {
		s.metrics.ObserveUpload("rejected")
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxBytes)
	}
	if !extract.IsPDF(content) {
		s.metrics.ObserveUpload("rejected")
		if s.logger != nil {
			s.logger.Info("upload rejected: not a PDF", zap.String("filename", name))
		}
		return nil, ErrNotPDF
	}

	id := uuid.New().String()
	path := filepath.Join(s.dir, id+"-"+name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		s.metrics.ObserveUpload("error")
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	res, err := s.register(ctx, id, name, path, int64(len(content)))
	if err != nil {
		_ = os.Remove(path)
		s.metrics.ObserveUpload("error")
		return nil, err
	}
	s.metrics.ObserveUpload("accepted")
	return res, nil
}

// ImportFile uploads the file at path and removes the original once it is stored.
func (s *Service) ImportFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	res, err := s.Upload(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove imported file", zap.String("path", path), zap.Error(err))
	}
	return res, nil
}

func (s *Service) register(ctx context.Context, id, name, path string, size int64) (*Result, error) {
	doc := &models.Document{
		ID:          id,
		Filename:    name,
		StoragePath: path,
		SizeBytes:   size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}
	jobID, err := s.queue.Enqueue(ctx, models.IngestionJob{
		DocumentID:  id,
		Filename:    name,
		StoragePath: path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue ingestion: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("upload queued",
			zap.String("document_id", id),
			zap.String("filename", name),
			zap.String("job_id", jobID),
			zap.Int64("size", size))
	}
	return &Result{Document: doc, JobID: jobID}, nil
}

// cleanFilename keeps the base name and replaces path separators and control characters.
func cleanFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' {
			return '_'
		}
		return r
	}, name)
	if name == "." || name == "" || name == "_" {
		return "document.pdf"
	}
	return name
}
