package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/storage"
	"github.com/hyperjump/docchat/pkg/utils"
	"go.uber.org/zap"
)

// syncBatch is how many records are read from storage per round trip when catching up.
const syncBatch = 500

// LocalIndex keeps records in SQLite and searches them with an in-memory MemoryIndex.
// Before each search it loads records written since the last sync, so records written
// by other processes (workers) become visible without a restart.
type LocalIndex struct {
	store   storage.Storage
	mem     *MemoryIndex
	records map[string]*models.IndexRecord
	lastSeq int64
	mu      sync.Mutex // serializes syncs
	logger  *zap.Logger
}

// LocalOption configures a LocalIndex.
type LocalOption func(*LocalIndex)

// WithLogger sets a logger for skipped records.
func WithLogger(l *zap.Logger) LocalOption {
	return func(idx *LocalIndex) { idx.logger = l }
}

// NewLocalIndex creates a local index over store for vectors of the given dimension.
func NewLocalIndex(store storage.Storage, dimensions int, opts ...LocalOption) (*LocalIndex, error) {
	mem, err := NewMemoryIndex(dimensions)
	if err != nil {
		return nil, err
	}
	idx := &LocalIndex{
		store:   store,
		mem:     mem,
		records: make(map[string]*models.IndexRecord),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Type returns "local".
func (l *LocalIndex) Type() string {
	return "local"
}

// Write stores rec in SQLite. The in-memory cache picks it up on the next search.
func (l *LocalIndex) Write(ctx context.Context, rec *models.IndexRecord) error {
	if len(rec.Embedding) != l.mem.Dimensions() {
		return fmt.Errorf("record %s has %d dimensions, index expects %d", rec.ID, len(rec.Embedding), l.mem.Dimensions())
	}
	if err := l.store.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Search syncs new records from storage, then returns the k nearest records by
// cosine similarity.
func (l *LocalIndex) Search(ctx context.Context, embedding []float32, k int) ([]*models.IndexRecord, error) {
	if err := l.sync(ctx); err != nil {
		return nil, err
	}
	hits, err := l.mem.Search(ctx, unitCopy(embedding), k)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*models.IndexRecord, 0, len(hits))
	for _, h := range hits {
		if rec, ok := l.records[h.ID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Size returns the number of records in storage.
func (l *LocalIndex) Size(ctx context.Context) (int, error) {
	n, err := l.store.CountRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return int(n), nil
}

// Close is a no-op; the storage is owned by the caller.
func (l *LocalIndex) Close() error {
	return nil
}

func (l *LocalIndex) sync(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		batch, err := l.store.RecordsAfter(ctx, l.lastSeq, syncBatch)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, 0, len(batch))
		vecs := make([][]float32, 0, len(batch))
		for _, sr := range batch {
			l.lastSeq = sr.Seq
			rec := sr.Record
			if len(rec.Embedding) != l.mem.Dimensions() {
				if l.logger != nil {
					l.logger.Warn("skipping record with wrong dimensions",
						zap.String("id", rec.ID), zap.Int("dimensions", len(rec.Embedding)))
				}
				continue
			}
			ids = append(ids, rec.ID)
			vecs = append(vecs, unitCopy(rec.Embedding))
			l.records[rec.ID] = rec
		}
		if err := l.mem.Add(ctx, ids, vecs); err != nil {
			return err
		}
		if len(batch) < syncBatch {
			return nil
		}
	}
}

// unitCopy returns v scaled to unit length, leaving v untouched.
func unitCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	utils.NormalizeL2(out)
	return out
}
