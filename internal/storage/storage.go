// Package storage defines the persistence interface for documents and index records.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/docchat/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmbeddingModelMismatch is returned when the configured embedding model differs from
// the one the stored records were embedded with.
var ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")

// StoredRecord is an index record with its insertion sequence number.
type StoredRecord struct {
	Seq    int64
	Record *models.IndexRecord
}

// Storage defines document and index record persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Record operations. Records are append-only.
	InsertRecord(ctx context.Context, rec *models.IndexRecord) error
	RecordsAfter(ctx context.Context, afterSeq int64, limit int) ([]*StoredRecord, error)

	// EnsureEmbeddingModel records model and dimensions on first use and returns
	// ErrEmbeddingModelMismatch if a different model was recorded before.
	EnsureEmbeddingModel(ctx context.Context, model string, dimensions int) error

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountRecords(ctx context.Context) (int64, error)

	Close() error
}
