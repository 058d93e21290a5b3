package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/docchat/internal/models"
)

// QdrantConfig configures a QdrantIndex.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimensions int
	Timeout    time.Duration
}

// QdrantIndex stores records as points of a Qdrant collection over its REST API.
// The collection is created with cosine distance on first write.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

type qdrantPayload struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	PageNo *int   `json:"pageNo"`
	Chunk  int    `json:"chunk"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

// errQdrantNotFound marks a 404 from Qdrant (collection missing).
type errQdrantNotFound struct{ url string }

func (e errQdrantNotFound) Error() string { return "qdrant: not found: " + e.url }

// NewQdrantIndex creates a Qdrant-backed index. No request is made until first use.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Type returns "qdrant".
func (q *QdrantIndex) Type() string {
	return "qdrant"
}

// Write upserts rec as one point and waits for it to be searchable.
func (q *QdrantIndex) Write(ctx context.Context, rec *models.IndexRecord) error {
	if len(rec.Embedding) != q.dimensions {
		return fmt.Errorf("record %s has %d dimensions, index expects %d", rec.ID, len(rec.Embedding), q.dimensions)
	}
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}
	body := map[string]any{"points": []qdrantPoint{{
		ID:     rec.ID,
		Vector: rec.Embedding,
		Payload: qdrantPayload{
			Text:   rec.ChunkText,
			Source: rec.Metadata.Source,
			PageNo: rec.Metadata.PageNo,
			Chunk:  rec.Metadata.Chunk,
		},
	}}}
	if err := q.do(ctx, http.MethodPut, q.collectionURL()+"/points?wait=true", body, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Search returns the k nearest points. A missing collection means an empty index.
func (q *QdrantIndex) Search(ctx context.Context, embedding []float32, k int) ([]*models.IndexRecord, error) {
	if len(embedding) != q.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(embedding), q.dimensions)
	}
	if k <= 0 {
		return []*models.IndexRecord{}, nil
	}
	req := map[string]any{
		"vector":       embedding,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any           `json:"id"`
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodPost, q.collectionURL()+"/points/search", req, &resp)
	if _, ok := err.(errQdrantNotFound); ok {
		return []*models.IndexRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	out := make([]*models.IndexRecord, 0, len(resp.Result))
	for _, r := range resp.Result {
		out = append(out, &models.IndexRecord{
			ID:        fmt.Sprint(r.ID),
			ChunkText: r.Payload.Text,
			Metadata: models.RecordMetadata{
				Source: r.Payload.Source,
				PageNo: r.Payload.PageNo,
				Chunk:  r.Payload.Chunk,
			},
		})
	}
	return out, nil
}

// Size returns the collection's point count, or 0 if it does not exist yet.
func (q *QdrantIndex) Size(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	err := q.do(ctx, http.MethodGet, q.collectionURL(), nil, &resp)
	if _, ok := err.(errQdrantNotFound); ok {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return resp.Result.PointsCount, nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantIndex) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", q.url, q.collection)
}

// ensureCollection creates the collection once per process if it does not exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured {
		return nil
	}
	err := q.do(ctx, http.MethodGet, q.collectionURL(), nil, nil)
	if _, ok := err.(errQdrantNotFound); ok {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     q.dimensions,
				"distance": "Cosine",
			},
		}
		err = q.do(ctx, http.MethodPut, q.collectionURL(), body, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: ensure collection: %w", ErrIndexUnavailable, err)
	}
	q.ensured = true
	return nil
}

func (q *QdrantIndex) do(ctx context.Context, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errQdrantNotFound{url: url}
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, url, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return nil
}
