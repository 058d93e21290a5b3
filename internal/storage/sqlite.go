package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docchat/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Several processes may share one
// database file; WAL mode and a busy timeout serialize their writes.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Open opens the SQLite database at dbPath in WAL mode with a busy timeout, creating
// parent directories as needed.
func Open(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		storage_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS index_records (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		page_no INTEGER,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_source ON index_records(source, chunk_index);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document. CreatedAt is set when zero.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, storage_path, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.StoragePath, doc.SizeBytes, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, storage_path, size_bytes, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.StoragePath, &doc.SizeBytes, &doc.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns documents, newest first, with offset and limit.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, storage_path, size_bytes, created_at
		 FROM documents ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*models.Document, 0)
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.StoragePath, &doc.SizeBytes, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// InsertRecord appends one index record. Each call is its own statement; a job that
// fails midway leaves the records written so far.
func (s *SQLiteStorage) InsertRecord(ctx context.Context, rec *models.IndexRecord) error {
	var pageNo sql.NullInt64
	if rec.Metadata.PageNo != nil {
		pageNo = sql.NullInt64{Int64: int64(*rec.Metadata.PageNo), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_records (id, source, page_no, chunk_index, text, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Metadata.Source, pageNo, rec.Metadata.Chunk, rec.ChunkText, encodeEmbedding(rec.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// RecordsAfter returns up to limit records with a sequence number greater than afterSeq,
// in insertion order.
func (s *SQLiteStorage) RecordsAfter(ctx context.Context, afterSeq int64, limit int) ([]*StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, source, page_no, chunk_index, text, embedding
		 FROM index_records WHERE seq > ? ORDER BY seq LIMIT ?`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredRecord
	for rows.Next() {
		var (
			sr     StoredRecord
			rec    models.IndexRecord
			pageNo sql.NullInt64
			blob   []byte
		)
		if err := rows.Scan(&sr.Seq, &rec.ID, &rec.Metadata.Source, &pageNo, &rec.Metadata.Chunk, &rec.ChunkText, &blob); err != nil {
			return nil, err
		}
		if pageNo.Valid {
			rec.Metadata.PageNo = models.Page(int(pageNo.Int64))
		}
		rec.Embedding = decodeEmbedding(blob)
		sr.Record = &rec
		out = append(out, &sr)
	}
	return out, rows.Err()
}

// EnsureEmbeddingModel records the embedding model on first use and rejects a different one later.
func (s *SQLiteStorage) EnsureEmbeddingModel(ctx context.Context, model string, dimensions int) error {
	dims := strconv.Itoa(dimensions)
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('embedding_model', ?), ('embedding_dimensions', ?)`,
		model, dims,
	); err != nil {
		return fmt.Errorf("failed to record embedding model: %w", err)
	}
	var gotModel, gotDims string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedding_model'`).Scan(&gotModel); err != nil {
		return fmt.Errorf("failed to read embedding model: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedding_dimensions'`).Scan(&gotDims); err != nil {
		return fmt.Errorf("failed to read embedding dimensions: %w", err)
	}
	if gotModel != model || gotDims != dims {
		return fmt.Errorf("%w: index built with %s (%s dims), configured %s (%s dims)",
			ErrEmbeddingModelMismatch, gotModel, gotDims, model, dims)
	}
	return nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountRecords returns the total number of index records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_records`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
