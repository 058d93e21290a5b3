// Package embedding provides text embedding models and wrappers for caching and rate limiting.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when the embedding model fails. Ingestion jobs and queries
// fail as a whole on this error.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text. Ingestion and queries must use the
// same model, identified by Model().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}

// embedEach implements EmbedBatch by calling embed for each text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
