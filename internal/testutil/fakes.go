package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/vector"
)

// ScriptedGenerator is a chat model that returns Reply (or Err) and records every call.
type ScriptedGenerator struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls [][]models.ChatMessage
}

// Complete records messages and returns the scripted reply.
func (g *ScriptedGenerator) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, append([]models.ChatMessage(nil), messages...))
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reply, nil
}

// Model returns "scripted".
func (g *ScriptedGenerator) Model() string { return "scripted" }

// Calls returns the messages of every call so far.
func (g *ScriptedGenerator) Calls() [][]models.ChatMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]models.ChatMessage(nil), g.calls...)
}

// RecordingIndex is a vector index that keeps written records in order and searches
// them with an in-memory brute-force index. FailAfter > 0 makes every write after
// that many succeed fail with vector.ErrIndexUnavailable.
type RecordingIndex struct {
	FailAfter int

	mu      sync.Mutex
	records []*models.IndexRecord
}

// Write appends rec.
func (r *RecordingIndex) Write(ctx context.Context, rec *models.IndexRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAfter > 0 && len(r.records) >= r.FailAfter {
		return errors.Join(vector.ErrIndexUnavailable, errors.New("write refused"))
	}
	r.records = append(r.records, rec)
	return nil
}

// Search returns the k records nearest to embedding.
func (r *RecordingIndex) Search(ctx context.Context, embedding []float32, k int) ([]*models.IndexRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.records) == 0 {
		return []*models.IndexRecord{}, nil
	}
	mem, err := vector.NewMemoryIndex(len(embedding))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.IndexRecord, len(r.records))
	for _, rec := range r.records {
		if err := mem.Add(ctx, []string{rec.ID}, [][]float32{rec.Embedding}); err != nil {
			return nil, err
		}
		byID[rec.ID] = rec
	}
	hits, err := mem.Search(ctx, embedding, k)
	if err != nil {
		return nil, err
	}
	out := make([]*models.IndexRecord, len(hits))
	for i, h := range hits {
		out[i] = byID[h.ID]
	}
	return out, nil
}

// Size returns the number of records written.
func (r *RecordingIndex) Size(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

// Type returns "recording".
func (r *RecordingIndex) Type() string { return "recording" }

// Close is a no-op.
func (r *RecordingIndex) Close() error { return nil }

// Records returns a copy of the written records in write order.
func (r *RecordingIndex) Records() []*models.IndexRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.IndexRecord(nil), r.records...)
}
