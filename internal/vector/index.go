// Package vector provides the vector index that stores chunk embeddings and answers
// nearest-neighbour queries.
package vector

import (
	"context"
	"errors"

	"github.com/hyperjump/docchat/internal/models"
)

// ErrIndexUnavailable is returned when the backing store cannot be reached or fails.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// VectorIndex stores index records and returns the records nearest to a query
// embedding. Records are never updated or deleted.
type VectorIndex interface {
	// Write persists one record. It is visible to every Search that starts afterwards.
	Write(ctx context.Context, rec *models.IndexRecord) error
	// Search returns at most k records, best first. An empty index yields an empty slice.
	Search(ctx context.Context, embedding []float32, k int) ([]*models.IndexRecord, error)
	// Size returns the number of stored records.
	Size(ctx context.Context) (int, error)
	Type() string
	Close() error
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID    string
	Score float64 // Inner product; cosine similarity for normalized vectors
}
