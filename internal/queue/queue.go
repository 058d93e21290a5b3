// Package queue provides the durable upload queue between the upload endpoint and the
// ingestion workers. Delivery is at-least-once: a job whose worker dies before
// acknowledging it is delivered again after its lease expires.
package queue

import (
	"context"
	"errors"

	"github.com/hyperjump/docchat/internal/models"
)

// DefaultName is the queue uploads are published to.
const DefaultName = "file-upload-queue"

// ErrLeaseLost is returned by Ack and Nack when the delivery's lease expired and the
// job was handed to another consumer.
var ErrLeaseLost = errors.New("job lease lost")

// Delivery is a job handed to one consumer for the duration of its lease.
type Delivery struct {
	ID      string
	Job     models.IngestionJob
	Attempt int
	token   string
}

// Queue accepts ingestion jobs.
type Queue interface {
	Enqueue(ctx context.Context, job models.IngestionJob) (string, error)
}

// Consumer hands out jobs to workers.
type Consumer interface {
	// Dequeue claims the oldest visible job, or returns nil when none is visible.
	Dequeue(ctx context.Context) (*Delivery, error)
	// Ack removes a processed job.
	Ack(ctx context.Context, d *Delivery) error
	// Nack returns a failed job to the queue, or dead-letters it after too many attempts.
	Nack(ctx context.Context, d *Delivery, cause error) error
	// Ready is signalled when a job is enqueued in this process.
	Ready() <-chan struct{}
}
