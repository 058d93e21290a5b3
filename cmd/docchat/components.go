package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/extract"
	"github.com/hyperjump/docchat/internal/indexer"
	"github.com/hyperjump/docchat/internal/llm"
	"github.com/hyperjump/docchat/internal/metrics"
	"github.com/hyperjump/docchat/internal/queue"
	"github.com/hyperjump/docchat/internal/search"
	"github.com/hyperjump/docchat/internal/server"
	"github.com/hyperjump/docchat/internal/storage"
	"github.com/hyperjump/docchat/internal/upload"
	"github.com/hyperjump/docchat/internal/vector"
	"github.com/hyperjump/docchat/internal/watcher"
	"go.uber.org/zap"
)

// Components holds initialized services. Embedder, Index, Generator and Engine are
// only set once the matching init method has run.
type Components struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Storage   *storage.SQLiteStorage
	Queue     *queue.SQLiteQueue
	Uploads   *upload.Service
	Embedder  embedding.Embedder
	Index     vector.VectorIndex
	Generator llm.Generator
	Engine    *search.Engine
}

// openComponents opens the database, the upload queue and the upload service.
func openComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger, Metrics: metrics.New()}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	q, err := queue.NewSQLiteQueue(cfg.Storage.QueuePath,
		queue.WithLease(cfg.Worker.LeaseDuration),
		queue.WithMaxAttempts(cfg.Worker.MaxAttempts),
		queue.WithRetryBackoff(cfg.Worker.RetryBackoff),
		queue.WithLogger(logger),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	c.Queue = q

	uploads, err := upload.NewService(cfg.Storage.UploadDir, store, q,
		upload.WithMaxBytes(cfg.Server.MaxUploadBytes),
		upload.WithLogger(logger),
		upload.WithMetrics(c.Metrics),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize uploads: %w", err)
	}
	c.Uploads = uploads
	return c, nil
}

// initRetrieval creates the embedder and the vector index. The database remembers the
// first embedding model it sees and refuses a different one.
func (c *Components) initRetrieval(ctx context.Context) error {
	embedder, err := embedding.New(ctx, &c.Config.Embedding, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder
	if err := c.Storage.EnsureEmbeddingModel(ctx, embedder.Model(), embedder.Dimensions()); err != nil {
		return err
	}
	idx, err := vector.NewVectorIndex(&c.Config.Vector, c.Storage, embedder.Dimensions(), c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Index = idx
	return nil
}

// initIndexOnly opens the vector index with the configured dimensions, without an
// embedder. Used for read-only status.
func (c *Components) initIndexOnly() error {
	idx, err := vector.NewVectorIndex(&c.Config.Vector, c.Storage, c.Config.Embedding.Dimensions, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Index = idx
	return nil
}

// initChat creates the chat model and the query engine. initRetrieval must run first.
func (c *Components) initChat(ctx context.Context) error {
	gen, err := llm.New(ctx, &c.Config.Generation, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize chat model: %w", err)
	}
	c.Generator = gen
	c.Engine = search.NewEngine(c.Embedder, c.Index, gen,
		search.WithTopK(c.Config.Query.TopK),
		search.WithMaxChunkChars(c.Config.Query.MaxChunkChars),
		search.WithLogger(c.Logger),
		search.WithMetrics(c.Metrics),
	)
	return nil
}

// newPool builds n ingestion workers sharing the queue, the embedder and the index.
func (c *Components) newPool(n int) *indexer.Pool {
	cfg := c.Config
	extractor := extract.NewPDFExtractor(extract.WithLogger(c.Logger))
	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.OverlapOrDefault(),
		indexer.WithBoundaryWindow(cfg.Chunking.BoundaryWindow))
	return indexer.NewPool(n, func(i int) *indexer.Worker {
		return indexer.NewWorker(c.Queue, extractor, chunker, c.Embedder, c.Index,
			indexer.WithLogger(c.Logger.With(zap.Int("worker", i))),
			indexer.WithMetrics(c.Metrics),
			indexer.WithPollInterval(cfg.Worker.PollInterval),
			indexer.WithJobTimeout(cfg.Worker.JobTimeout),
		)
	})
}

// newInbox watches the configured inbox directories and imports the PDFs dropped there.
// It returns nil when no directory is configured.
func (c *Components) newInbox() *watcher.Inbox {
	dirs := c.Config.Watch.Directories
	if len(dirs) == 0 {
		return nil
	}
	return watcher.NewInbox(dirs, c.Config.Watch.RecursiveOrDefault(),
		func(ctx context.Context, path string) error {
			_, err := c.Uploads.ImportFile(ctx, path)
			return err
		},
		watcher.WithLogger(c.Logger),
	)
}

// newServer builds the HTTP server over the initialized components.
func (c *Components) newServer(inbox *watcher.Inbox) *server.Server {
	opts := []server.Option{
		server.WithQueue(c.Queue),
		server.WithMetrics(c.Metrics),
	}
	if c.Index != nil {
		opts = append(opts, server.WithIndex(c.Index))
	}
	if inbox != nil {
		opts = append(opts, server.WithWatcher(inbox))
	}
	var embedderModel, chatModel string
	if c.Embedder != nil {
		embedderModel = c.Embedder.Model()
	} else {
		embedderModel = c.Config.Embedding.Model
	}
	if c.Generator != nil {
		chatModel = c.Generator.Model()
	}
	opts = append(opts, server.WithModels(embedderModel, chatModel))
	return server.NewServer(c.Engine, c.Uploads, c.Storage, c.Config, c.Logger, opts...)
}

// Close releases everything that was opened.
func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Queue != nil {
		_ = c.Queue.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}
