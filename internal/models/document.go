// Package models defines core data structures for documents, chunks, index records and answers.
package models

import "time"

// Document is an uploaded PDF. It is created on upload and never mutated.
// Filename is the provenance key shown in answer sources.
type Document struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	StoragePath string    `json:"storage_path" db:"storage_path"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// PageText is the extracted text of one physical page.
// A nil PageNumber means the page is unknown.
type PageText struct {
	PageNumber *int
	Text       string
}

// Chunk is a contiguous slice of a document's text, the unit of embedding and retrieval.
// ChunkIndex is 0-based and strictly increasing across the whole document.
type Chunk struct {
	Text           string
	SourceFilename string
	PageNumber     *int
	ChunkIndex     int
}

// IngestionJob asks a worker to ingest one stored document.
type IngestionJob struct {
	DocumentID  string `json:"documentId,omitempty"`
	Filename    string `json:"filename"`
	StoragePath string `json:"storagePath"`
}

// Page returns a pointer to n, for building PageText and Chunk page numbers.
func Page(n int) *int {
	return &n
}
