package vector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/storage"
)

func newLocalIndex(t *testing.T, dbPath string) (*LocalIndex, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	idx, err := NewLocalIndex(store, 3)
	if err != nil {
		t.Fatal(err)
	}
	return idx, store
}

func record(id, source string, chunk int, emb []float32) *models.IndexRecord {
	return &models.IndexRecord{
		ID:        id,
		Embedding: emb,
		ChunkText: "text of " + id,
		Metadata:  models.RecordMetadata{Source: source, PageNo: models.Page(1), Chunk: chunk},
	}
}

func TestLocalIndex_WriteThenSearch(t *testing.T) {
	idx, _ := newLocalIndex(t, filepath.Join(t.TempDir(), "idx.db"))
	ctx := context.Background()

	empty, err := idx.Search(ctx, []float32{1, 0, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("empty index should give empty slice, got %v", empty)
	}

	recs := []*models.IndexRecord{
		record("r1", "a.pdf", 0, []float32{1, 0, 0}),
		record("r2", "a.pdf", 1, []float32{0, 1, 0}),
		record("r3", "b.pdf", 0, []float32{0.8, 0.6, 0}),
	}
	for _, r := range recs {
		if err := idx.Write(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "r1" || got[1].ID != "r3" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if got[1].ChunkText != "text of r3" || got[1].Metadata.Source != "b.pdf" {
		t.Errorf("payload not returned: %+v", got[1])
	}

	// Later writes become visible to later searches.
	if err := idx.Write(ctx, record("r4", "c.pdf", 0, []float32{0, 0, 1})); err != nil {
		t.Fatal(err)
	}
	got, err = idx.Search(ctx, []float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "r4" {
		t.Errorf("new record not visible: %+v", got)
	}

	size, err := idx.Size(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size != 4 {
		t.Errorf("Size = %d, want 4", size)
	}
}

func TestLocalIndex_SeesWritesFromOtherProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	reader, _ := newLocalIndex(t, path)
	writer, _ := newLocalIndex(t, path)
	ctx := context.Background()

	if _, err := reader.Search(ctx, []float32{1, 0, 0}, 4); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < syncBatch+3; i++ {
		if err := writer.Write(ctx, record(fmt.Sprintf("w%d", i), "big.pdf", i, []float32{1, 0, 0})); err != nil {
			t.Fatal(err)
		}
	}
	got, err := reader.Search(ctx, []float32{1, 0, 0}, syncBatch+10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != syncBatch+3 {
		t.Errorf("reader saw %d records, want %d", len(got), syncBatch+3)
	}
}

func TestLocalIndex_RejectsWrongDimensions(t *testing.T) {
	idx, _ := newLocalIndex(t, filepath.Join(t.TempDir(), "dim.db"))
	if err := idx.Write(context.Background(), record("bad", "a.pdf", 0, []float32{1, 0})); err == nil {
		t.Error("expected dimension error")
	}
}

func TestLocalIndex_UnavailableAfterClose(t *testing.T) {
	idx, store := newLocalIndex(t, filepath.Join(t.TempDir(), "closed.db"))
	store.Close()
	_, err := idx.Search(context.Background(), []float32{1, 0, 0}, 4)
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("error = %v, want ErrIndexUnavailable", err)
	}
	err = idx.Write(context.Background(), record("x", "a.pdf", 0, []float32{1, 0, 0}))
	if !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("error = %v, want ErrIndexUnavailable", err)
	}
}

func TestLocalIndex_RanksByCosineForNonUnitVectors(t *testing.T) {
	idx, _ := newLocalIndex(t, filepath.Join(t.TempDir(), "cosine.db"))
	ctx := context.Background()

	if err := idx.Write(ctx, record("aligned", "a.pdf", 0, []float32{1, 0.1, 0})); err != nil {
		t.Fatal(err)
	}
	if err := idx.Write(ctx, record("long", "b.pdf", 0, []float32{5, 5, 5})); err != nil {
		t.Fatal(err)
	}

	got, err := idx.Search(ctx, []float32{3, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "aligned" || got[1].ID != "long" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[1].Embedding[0] != 5 {
		t.Errorf("stored embedding was modified: %v", got[1].Embedding)
	}
}
