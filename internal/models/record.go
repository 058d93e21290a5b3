package models

// RecordMetadata is the provenance stored alongside each embedding.
// PageNo is null in JSON when the page is unknown.
type RecordMetadata struct {
	Source string `json:"source"`
	PageNo *int   `json:"pageNo"`
	Chunk  int    `json:"chunk"`
}

// IndexRecord is one entry of the vector index. Records are append-only.
type IndexRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"-"`
	ChunkText string         `json:"text"`
	Metadata  RecordMetadata `json:"metadata"`
}

// NewIndexRecord builds the record for chunk c with embedding emb.
func NewIndexRecord(id string, c *Chunk, emb []float32) *IndexRecord {
	return &IndexRecord{
		ID:        id,
		Embedding: emb,
		ChunkText: c.Text,
		Metadata: RecordMetadata{
			Source: c.SourceFilename,
			PageNo: c.PageNumber,
			Chunk:  c.ChunkIndex,
		},
	}
}
