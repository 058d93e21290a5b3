package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/docchat/internal/embedding"
	"github.com/hyperjump/docchat/internal/extract"
	"github.com/hyperjump/docchat/internal/metrics"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/queue"
	"github.com/hyperjump/docchat/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = time.Second
	defaultJobTimeout   = 10 * time.Minute
	// settleTimeout bounds the ack or nack that follows a job.
	settleTimeout = 30 * time.Second
)

// Worker turns ingestion jobs into index records: extract pages, chunk, embed, write.
// Each worker handles one job at a time.
type Worker struct {
	consumer     queue.Consumer
	extractor    extract.PageExtractor
	chunker      *Chunker
	embedder     embedding.Embedder
	index        vector.VectorIndex
	logger       *zap.Logger // optional
	metrics      *metrics.Metrics
	pollInterval time.Duration
	jobTimeout   time.Duration
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets a logger for per-job progress.
func WithLogger(l *zap.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithMetrics records job outcomes.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithPollInterval sets how often the queue is polled when no in-process signal arrives.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithJobTimeout bounds the time spent on one job.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// NewWorker creates a worker with the given capabilities. consumer may be nil when
// only Process is used.
func NewWorker(
	consumer queue.Consumer,
	extractor extract.PageExtractor,
	chunker *Chunker,
	embedder embedding.Embedder,
	index vector.VectorIndex,
	opts ...WorkerOption,
) *Worker {
	w := &Worker{
		consumer:     consumer,
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		index:        index,
		pollInterval: defaultPollInterval,
		jobTimeout:   defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process ingests one job and returns the number of records written. Records are
// written one at a time; on error the records already written stay in the index.
// Processing the same job twice writes its records twice.
func (w *Worker) Process(ctx context.Context, job models.IngestionJob) (int, error) {
	pages, err := w.extractor.ExtractPages(ctx, job.StoragePath)
	if err != nil {
		return 0, err
	}
	for i := range pages {
		pages[i].Text = Preprocess(pages[i].Text)
	}
	chunks := w.chunker.ChunkPages(job.Filename, pages, 0)
	if len(chunks) == 0 {
		if w.logger != nil {
			w.logger.Warn("document has no extractable text", zap.String("filename", job.Filename))
		}
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if !errors.Is(err, embedding.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", embedding.ErrEmbedding, err)
		}
		return 0, err
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("%w: got %d embeddings for %d chunks", embedding.ErrEmbedding, len(embeddings), len(chunks))
	}

	for i, ch := range chunks {
		rec := models.NewIndexRecord(uuid.New().String(), ch, embeddings[i])
		if err := w.index.Write(ctx, rec); err != nil {
			return i, fmt.Errorf("failed to write chunk %d: %w", ch.ChunkIndex, err)
		}
	}
	return len(chunks), nil
}

// RunOnce claims at most one job and processes it. It returns false when the queue
// had nothing visible. The job runs on a context that ignores cancellation of ctx so a
// shutdown never interrupts a job midway; it is bounded by the job timeout instead.
// The ack or nack runs on its own context, so a job that hit its timeout is still
// scheduled for retry or dead-lettered.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	d, err := w.consumer.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if d == nil {
		return false, nil
	}

	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	log := w.logger
	if log != nil {
		log = log.With(
			zap.String("job_id", d.ID),
			zap.String("filename", d.Job.Filename),
			zap.Int("attempt", d.Attempt))
		log.Info("ingestion started")
	}

	start := time.Now()
	written, procErr := w.Process(jobCtx, d.Job)
	elapsed := time.Since(start)

	if procErr != nil {
		w.metrics.ObserveJob("error", elapsed, written)
		if log != nil {
			log.Error("ingestion failed",
				zap.Error(procErr),
				zap.Int("records_written", written),
				zap.Duration("duration", elapsed))
		}
		settleCtx, cancelSettle := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancelSettle()
		if err := w.consumer.Nack(settleCtx, d, procErr); err != nil {
			return true, err
		}
		return true, nil
	}

	w.metrics.ObserveJob("ok", elapsed, written)
	if log != nil {
		log.Info("ingestion finished", zap.Int("chunks", written), zap.Duration("duration", elapsed))
	}
	settleCtx, cancelSettle := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancelSettle()
	if err := w.consumer.Ack(settleCtx, d); err != nil {
		return true, err
	}
	return true, nil
}

// Run pulls jobs until ctx is cancelled. After a processed job it immediately looks for
// the next; when the queue is empty it waits for an enqueue signal or the poll interval.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		handled, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if w.logger != nil {
				w.logger.Warn("worker iteration failed", zap.Error(err))
			}
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-w.consumer.Ready():
		case <-ticker.C:
		}
	}
}

// Pool runs several workers that share one queue.
type Pool struct {
	workers []*Worker
}

// NewPool creates n workers built by newWorker. n < 1 is treated as 1.
func NewPool(n int, newWorker func(i int) *Worker) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{workers: make([]*Worker, n)}
	for i := range p.workers {
		p.workers[i] = newWorker(i)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run runs every worker until ctx is cancelled and each has finished its current job.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}
