package embedding

import (
	"context"
	"hash/fnv"

	"github.com/hyperjump/docchat/pkg/utils"
)

// HashingEmbedder is a deterministic bag-of-words embedder. Each normalized term is
// hashed into one of the vector's buckets with a hash-derived sign, and the result is
// L2-normalized, so texts sharing terms have positive inner product. It needs no model
// files or network access.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder of the given dimensions (default 384).
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the hashed term vector of text. Text without terms embeds to the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, term := range Terms(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimensions))
		if sum>>63 == 1 {
			emb[bucket]--
		} else {
			emb[bucket]++
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Model identifies the hashing scheme.
func (e *HashingEmbedder) Model() string {
	return "hashing-bow"
}

// Close is a no-op for HashingEmbedder.
func (e *HashingEmbedder) Close() error {
	return nil
}
