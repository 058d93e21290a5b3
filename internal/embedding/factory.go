package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/docchat/internal/config"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider, wrapped with rate limiting when
// cfg.RequestsPerSecond > 0 and with an LRU cache when cfg.CacheSize > 0.
func New(ctx context.Context, cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	var e Embedder
	switch cfg.Provider {
	case "hashing":
		e = NewHashingEmbedder(cfg.Dimensions)
	case "onnx":
		onnx, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		e = onnx
	case "gemini":
		key := config.APIKey(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("gemini embedding requires an API key in $%s", cfg.APIKeyEnv)
		}
		gemini, err := NewGeminiEmbedder(ctx, cfg.Model, cfg.Dimensions, key, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		e = gemini
	case "ollama":
		e = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	if cfg.RequestsPerSecond > 0 {
		e = NewRateLimitedEmbedder(e, cfg.RequestsPerSecond, int(cfg.RequestsPerSecond)+1)
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	if logger != nil {
		logger.Info("embedding model ready",
			zap.String("provider", cfg.Provider),
			zap.String("model", e.Model()),
			zap.Int("dimensions", e.Dimensions()))
	}
	return e, nil
}
