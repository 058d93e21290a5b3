// Package search answers questions from the indexed documents.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/llm"
	"github.com/hyperjump/docchat/internal/metrics"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/vector"
	"go.uber.org/zap"
)

const (
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 4
	// DefaultMaxChunkChars bounds each chunk in the prompt.
	DefaultMaxChunkChars = 1000
)

// Engine embeds a question, retrieves the nearest chunks, and asks the chat model to
// answer from them.
type Engine struct {
	embedder      embedding.Embedder
	index         vector.VectorIndex
	generator     llm.Generator
	topK          int
	maxChunkChars int
	logger        *zap.Logger // optional
	metrics       *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTopK sets how many chunks are retrieved.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithMaxChunkChars sets the per-chunk character limit in the prompt.
func WithMaxChunkChars(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxChunkChars = n
		}
	}
}

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records query outcomes.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates a query engine. embedder must be the model the index was built with.
func NewEngine(embedder embedding.Embedder, index vector.VectorIndex, generator llm.Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		embedder:      embedder,
		index:         index,
		generator:     generator,
		topK:          DefaultTopK,
		maxChunkChars: DefaultMaxChunkChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Answer answers question from the indexed documents. With nothing retrieved it returns
// NoContextAnswer and no sources without calling the chat model. Errors wrap
// ErrInvalidQuery, embedding.ErrEmbedding, vector.ErrIndexUnavailable or llm.ErrGeneration.
func (e *Engine) Answer(ctx context.Context, question string) (*models.Answer, error) {
	start := time.Now()
	answer, retrieved, err := e.answer(ctx, question)
	status := "ok"
	if err != nil {
		status = errorStatus(err)
	}
	e.metrics.ObserveQuery(status, time.Since(start), retrieved)
	if e.logger != nil {
		if err != nil {
			e.logger.Warn("question failed", zap.String("status", status), zap.Error(err))
		} else {
			e.logger.Debug("question answered",
				zap.Int("retrieved", retrieved),
				zap.Duration("duration", time.Since(start)))
		}
	}
	return answer, err
}

func (e *Engine) answer(ctx context.Context, question string) (*models.Answer, int, error) {
	q, err := ProcessQuery(question)
	if err != nil {
		return nil, 0, err
	}

	queryEmbedding, err := e.embedder.Embed(ctx, q)
	if err != nil {
		if !errors.Is(err, embedding.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", embedding.ErrEmbedding, err)
		}
		return nil, 0, err
	}

	records, err := e.index.Search(ctx, queryEmbedding, e.topK)
	if err != nil {
		if !errors.Is(err, vector.ErrIndexUnavailable) {
			err = fmt.Errorf("%w: %w", vector.ErrIndexUnavailable, err)
		}
		return nil, 0, err
	}
	if len(records) == 0 {
		return &models.Answer{Answer: NoContextAnswer, Sources: []models.Source{}}, 0, nil
	}

	text, err := e.generator.Complete(ctx, BuildMessages(q, records, e.maxChunkChars))
	if err != nil {
		if !errors.Is(err, llm.ErrGeneration) {
			err = fmt.Errorf("%w: %w", llm.ErrGeneration, err)
		}
		return nil, len(records), err
	}
	return &models.Answer{Answer: text, Sources: Sources(records)}, len(records), nil
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		return "invalid"
	case errors.Is(err, embedding.ErrEmbedding):
		return "embedding_error"
	case errors.Is(err, vector.ErrIndexUnavailable):
		return "index_unavailable"
	case errors.Is(err, llm.ErrGeneration):
		return "generation_error"
	default:
		return "error"
	}
}
