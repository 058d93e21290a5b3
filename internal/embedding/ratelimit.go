package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedEmbedder throttles calls to a remote embedding model with a token bucket.
type RateLimitedEmbedder struct {
	Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder allows requestsPerSecond sustained calls with the given burst.
func NewRateLimitedEmbedder(e Embedder, requestsPerSecond float64, burst int) *RateLimitedEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedEmbedder{Embedder: e, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Embed waits for a token, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", ErrEmbedding, err)
	}
	return r.Embedder.Embed(ctx, text)
}

// EmbedBatch waits for one token per batch call, then delegates.
func (r *RateLimitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", ErrEmbedding, err)
	}
	return r.Embedder.EmbedBatch(ctx, texts)
}
