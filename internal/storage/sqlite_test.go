package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docchat/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	doc := &models.Document{ID: "doc1", Filename: "report.pdf", StoragePath: "/tmp/uploads/doc1-report.pdf", SizeBytes: 42}
	if err := store.CreateDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if err := store.CreateDocument(ctx, &models.Document{ID: "doc2", Filename: "b.pdf", StoragePath: "/tmp/b.pdf"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Filename != "report.pdf" || got.StoragePath != doc.StoragePath || got.SizeBytes != 42 {
		t.Errorf("got %+v", got)
	}

	if _, err := store.GetDocument(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDocument(missing) error = %v, want ErrNotFound", err)
	}

	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 docs, got %d", len(list))
	}
	page, err := store.ListDocuments(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 {
		t.Errorf("offset 1: expected 1 doc, got %d", len(page))
	}

	n, err := store.CountDocuments(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountDocuments = %d, %v", n, err)
	}
}

func TestSQLiteStorage_Records(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	recs := []*models.IndexRecord{
		{ID: "r1", Embedding: []float32{0.5, -1.25, 3}, ChunkText: "The sky is blue.",
			Metadata: models.RecordMetadata{Source: "a.pdf", PageNo: models.Page(1), Chunk: 0}},
		{ID: "r2", Embedding: []float32{1, 0, 0}, ChunkText: "no page",
			Metadata: models.RecordMetadata{Source: "a.pdf", Chunk: 1}},
		{ID: "r3", Embedding: []float32{0, 1, 0}, ChunkText: "third",
			Metadata: models.RecordMetadata{Source: "b.pdf", PageNo: models.Page(4), Chunk: 0}},
	}
	for _, r := range recs {
		if err := store.InsertRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.RecordsAfter(ctx, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d records, want 3", len(all))
	}
	first := all[0].Record
	if first.ID != "r1" || first.ChunkText != "The sky is blue." || first.Metadata.Source != "a.pdf" {
		t.Errorf("unexpected first record %+v", first)
	}
	if first.Metadata.PageNo == nil || *first.Metadata.PageNo != 1 {
		t.Errorf("page number = %v, want 1", first.Metadata.PageNo)
	}
	if len(first.Embedding) != 3 || first.Embedding[1] != -1.25 {
		t.Errorf("embedding round trip: %v", first.Embedding)
	}
	if all[1].Record.Metadata.PageNo != nil {
		t.Errorf("unknown page should stay nil, got %d", *all[1].Record.Metadata.PageNo)
	}

	rest, err := store.RecordsAfter(ctx, all[0].Seq, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 1 || rest[0].Record.ID != "r2" {
		t.Errorf("RecordsAfter(seq1, 1) = %v", rest)
	}

	n, err := store.CountRecords(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountRecords = %d, %v", n, err)
	}
}

func TestSQLiteStorage_EnsureEmbeddingModel(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	if err := store.EnsureEmbeddingModel(ctx, "models/embedding-001", 768); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := store.EnsureEmbeddingModel(ctx, "models/embedding-001", 768); err != nil {
		t.Fatalf("same model: %v", err)
	}
	if err := store.EnsureEmbeddingModel(ctx, "hashing-bow", 384); !errors.Is(err, ErrEmbeddingModelMismatch) {
		t.Errorf("different model error = %v, want ErrEmbeddingModelMismatch", err)
	}
}

func TestSQLiteStorage_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx := context.Background()
	rec := &models.IndexRecord{ID: "x", Embedding: []float32{1}, ChunkText: "t", Metadata: models.RecordMetadata{Source: "s.pdf"}}
	if err := a.InsertRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := b.RecordsAfter(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("second handle sees %d records, want 1", len(got))
	}
}
