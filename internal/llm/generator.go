// Package llm provides the chat models that turn retrieved context into an answer.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrGeneration is returned when the chat model fails or returns no text.
var ErrGeneration = errors.New("generation failed")

// Generator completes a conversation with a single assistant reply.
type Generator interface {
	Complete(ctx context.Context, messages []models.ChatMessage) (string, error)
	Model() string
}

// RateLimitedGenerator throttles calls to a remote chat model with a token bucket.
type RateLimitedGenerator struct {
	Generator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator allows requestsPerSecond sustained calls with the given burst.
func NewRateLimitedGenerator(g Generator, requestsPerSecond float64, burst int) *RateLimitedGenerator {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedGenerator{Generator: g, limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Complete waits for a token, then delegates.
func (r *RateLimitedGenerator) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limit wait: %w", ErrGeneration, err)
	}
	return r.Generator.Complete(ctx, messages)
}

// New builds the generator selected by cfg.Provider, rate limited when
// cfg.RequestsPerSecond > 0.
func New(ctx context.Context, cfg *config.GenerationConfig, logger *zap.Logger) (Generator, error) {
	var g Generator
	switch cfg.Provider {
	case "gemini":
		key := config.APIKey(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("gemini generation requires an API key in $%s", cfg.APIKeyEnv)
		}
		gemini, err := NewGeminiGenerator(ctx, cfg.Model, cfg.Temperature, key, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		g = gemini
	case "ollama":
		g = NewOllamaGenerator(cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	if cfg.RequestsPerSecond > 0 {
		g = NewRateLimitedGenerator(g, cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)+1)
	}
	if logger != nil {
		logger.Info("chat model ready", zap.String("provider", cfg.Provider), zap.String("model", g.Model()))
	}
	return g, nil
}
