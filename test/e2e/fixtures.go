package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/extract"
	"github.com/hyperjump/docchat/internal/indexer"
	"github.com/hyperjump/docchat/internal/metrics"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/queue"
	"github.com/hyperjump/docchat/internal/search"
	"github.com/hyperjump/docchat/internal/server"
	"github.com/hyperjump/docchat/internal/storage"
	"github.com/hyperjump/docchat/internal/testutil"
	"github.com/hyperjump/docchat/internal/upload"
	"github.com/hyperjump/docchat/internal/vector"
	"github.com/stretchr/testify/require"
)

const (
	embeddingDimensions = 1024
	leaseDuration       = time.Minute
)

// Clock is a manually advanced time source for the queue.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Env is a running docchat stack: an HTTP server in front of the upload service and the
// query engine, plus one ingestion worker driven by the test.
type Env struct {
	Config   *config.Config
	Store    *storage.SQLiteStorage
	Queue    *queue.SQLiteQueue
	Clock    *Clock
	Index    *vector.LocalIndex
	Embedder *embedding.HashingEmbedder
	Model    *testutil.ScriptedGenerator
	Worker   *indexer.Worker
	Server   *httptest.Server
}

// NewEnv builds an Env in a temporary directory. Everything is closed on test cleanup.
func NewEnv(t testing.TB) *Env {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "docchat.db")
	cfg.Storage.QueuePath = filepath.Join(dir, "db", "queue.db")
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	config.ApplyDefaults(cfg)

	env := &Env{
		Config:   cfg,
		Clock:    &Clock{now: time.Unix(1_700_000_000, 0)},
		Embedder: embedding.NewHashingEmbedder(embeddingDimensions),
		Model:    &testutil.ScriptedGenerator{Reply: "Answer from the documents."},
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureEmbeddingModel(context.Background(), env.Embedder.Model(), env.Embedder.Dimensions()))
	env.Store = store

	q, err := queue.NewSQLiteQueue(cfg.Storage.QueuePath,
		queue.WithClock(env.Clock.Now),
		queue.WithLease(leaseDuration),
		queue.WithRetryBackoff(time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	env.Queue = q

	idx, err := vector.NewLocalIndex(store, embeddingDimensions)
	require.NoError(t, err)
	env.Index = idx

	m := metrics.New()
	uploads, err := upload.NewService(cfg.Storage.UploadDir, store, q, upload.WithMetrics(m))
	require.NoError(t, err)

	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault())
	env.Worker = indexer.NewWorker(q, extract.NewPDFExtractor(), chunker, env.Embedder, idx,
		indexer.WithMetrics(m))

	engine := search.NewEngine(env.Embedder, idx, env.Model,
		search.WithTopK(cfg.Query.TopK),
		search.WithMaxChunkChars(cfg.Query.MaxChunkChars),
		search.WithMetrics(m),
	)
	srv := server.NewServer(engine, uploads, store, cfg, nil,
		server.WithIndex(idx),
		server.WithQueue(q),
		server.WithMetrics(m),
		server.WithModels(env.Embedder.Model(), env.Model.Model()),
	)
	env.Server = httptest.NewServer(srv.Router())
	t.Cleanup(env.Server.Close)
	return env
}

// Upload posts content as the "pdf" form field and returns the status code and the
// decoded body.
func (e *Env) Upload(t testing.TB, filename, contentType string, content []byte) (int, map[string]string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="pdf"; filename="%s"`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(e.Server.URL+"/upload/pdf", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]string{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// UploadPDF uploads a PDF built from pages and requires it to be accepted.
func (e *Env) UploadPDF(t testing.TB, filename string, pages ...string) models.UploadResponse {
	t.Helper()
	status, body := e.Upload(t, filename, "application/pdf", testutil.BuildPDF(pages...))
	require.Equal(t, http.StatusAccepted, status, "upload rejected: %v", body)
	return models.UploadResponse{
		Message:    body["message"],
		Filename:   body["filename"],
		DocumentID: body["documentId"],
		JobID:      body["jobId"],
	}
}

// Ask queries GET /chat and returns the status code and the decoded answer.
func (e *Env) Ask(t testing.TB, question string) (int, models.Answer) {
	t.Helper()
	resp, err := http.Get(e.Server.URL + "/chat?q=" + url.QueryEscape(question))
	require.NoError(t, err)
	defer resp.Body.Close()
	var answer models.Answer
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&answer))
	}
	return resp.StatusCode, answer
}

// Drain runs the worker until the queue has no visible job and returns how many jobs
// it handled.
func (e *Env) Drain(t testing.TB) int {
	t.Helper()
	n := 0
	for {
		ok, err := e.Worker.RunOnce(context.Background())
		require.NoError(t, err)
		if !ok {
			return n
		}
		n++
	}
}

// RecordCount returns the number of index records.
func (e *Env) RecordCount(t testing.TB) int {
	t.Helper()
	n, err := e.Index.Size(context.Background())
	require.NoError(t, err)
	return n
}
