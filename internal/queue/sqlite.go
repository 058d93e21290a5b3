package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/docchat/internal/models"
	"github.com/hyperjump/docchat/internal/storage"
	"go.uber.org/zap"
)

// Job states.
const (
	stateQueued = "queued"
	stateDead   = "dead"
)

// SQLiteQueue is a durable queue stored in a SQLite table. A claimed job stays in the
// table with its visibility pushed out by the lease duration; acknowledging deletes it.
// Claims are single UPDATE statements, so any number of processes may consume the
// same database file.
type SQLiteQueue struct {
	db          *sql.DB
	name        string
	lease       time.Duration
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	ready       chan struct{}
	logger      *zap.Logger // optional
}

// Option configures a SQLiteQueue.
type Option func(*SQLiteQueue)

// WithName sets the queue name (default DefaultName).
func WithName(name string) Option {
	return func(q *SQLiteQueue) { q.name = name }
}

// WithLease sets how long a claimed job stays invisible to other consumers.
func WithLease(d time.Duration) Option {
	return func(q *SQLiteQueue) { q.lease = d }
}

// WithMaxAttempts sets how many deliveries a job gets before it is dead-lettered.
func WithMaxAttempts(n int) Option {
	return func(q *SQLiteQueue) { q.maxAttempts = n }
}

// WithRetryBackoff sets the base delay before a failed job becomes visible again.
// The delay grows linearly with the attempt number.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *SQLiteQueue) { q.backoff = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *SQLiteQueue) { q.now = now }
}

// WithLogger sets a logger for dead-lettered jobs and lost leases.
func WithLogger(l *zap.Logger) Option {
	return func(q *SQLiteQueue) { q.logger = l }
}

// NewSQLiteQueue opens or creates the queue database at path.
func NewSQLiteQueue(path string, opts ...Option) (*SQLiteQueue, error) {
	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	q := &SQLiteQueue{
		db:          db,
		name:        DefaultName,
		lease:       11 * time.Minute,
		maxAttempts: 5,
		backoff:     10 * time.Second,
		now:         time.Now,
		ready:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if err := q.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
	CREATE TABLE IF NOT EXISTS jobs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		queue TEXT NOT NULL,
		payload TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'queued',
		attempts INTEGER NOT NULL DEFAULT 0,
		visible_at INTEGER NOT NULL,
		lease_token TEXT,
		last_error TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_visible ON jobs(queue, state, visible_at, seq);
	`)
	return err
}

// Enqueue durably stores job and returns its ID.
func (q *SQLiteQueue) Enqueue(ctx context.Context, job models.IngestionJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}
	id := uuid.New().String()
	now := q.now().UnixNano()
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO jobs (id, queue, payload, state, visible_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, q.name, string(payload), stateQueued, now, now,
	); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return id, nil
}

// Dequeue claims the oldest visible job for the lease duration. Jobs whose lease
// expired on their last allowed delivery are dead-lettered first.
func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	now := q.now()
	if err := q.expireExhausted(ctx, now); err != nil {
		return nil, err
	}
	token := uuid.New().String()
	var (
		d       Delivery
		payload string
	)
	err := q.db.QueryRowContext(ctx,
		`UPDATE jobs SET attempts = attempts + 1, visible_at = ?, lease_token = ?
		 WHERE seq = (
			SELECT seq FROM jobs
			WHERE queue = ? AND state = ? AND visible_at <= ?
			ORDER BY seq LIMIT 1
		 )
		 RETURNING id, payload, attempts`,
		now.Add(q.lease).UnixNano(), token, q.name, stateQueued, now.UnixNano(),
	).Scan(&d.ID, &payload, &d.Attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &d.Job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", d.ID, err)
	}
	d.token = token
	return &d, nil
}

func (q *SQLiteQueue) expireExhausted(ctx context.Context, now time.Time) error {
	rows, err := q.db.QueryContext(ctx,
		`UPDATE jobs SET state = ?, lease_token = NULL,
			last_error = COALESCE(last_error, 'lease expired')
		 WHERE queue = ? AND state = ? AND lease_token IS NOT NULL
			AND visible_at <= ? AND attempts >= ?
		 RETURNING id, attempts`,
		stateDead, q.name, stateQueued, now.UnixNano(), q.maxAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to expire jobs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id       string
			attempts int
		)
		if err := rows.Scan(&id, &attempts); err != nil {
			return fmt.Errorf("failed to expire jobs: %w", err)
		}
		if q.logger != nil {
			q.logger.Warn("job dead-lettered after lease expiry",
				zap.String("job_id", id),
				zap.Int("attempts", attempts))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to expire jobs: %w", err)
	}
	return nil
}

// Ack deletes the job. It returns ErrLeaseLost if the job was redelivered meanwhile.
func (q *SQLiteQueue) Ack(ctx context.Context, d *Delivery) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND lease_token = ?`, d.ID, d.token)
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", d.ID, err)
	}
	return q.checkLease(res, d)
}

// Nack makes the job visible again after a backoff, or marks it dead once it has been
// delivered maxAttempts times.
func (q *SQLiteQueue) Nack(ctx context.Context, d *Delivery, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if d.Attempt >= q.maxAttempts {
		res, err := q.db.ExecContext(ctx,
			`UPDATE jobs SET state = ?, lease_token = NULL, last_error = ? WHERE id = ? AND lease_token = ?`,
			stateDead, msg, d.ID, d.token,
		)
		if err != nil {
			return fmt.Errorf("failed to dead-letter job %s: %w", d.ID, err)
		}
		if q.logger != nil {
			q.logger.Warn("job dead-lettered",
				zap.String("job_id", d.ID),
				zap.String("filename", d.Job.Filename),
				zap.Int("attempts", d.Attempt),
				zap.String("error", msg))
		}
		return q.checkLease(res, d)
	}
	visibleAt := q.now().Add(q.backoff * time.Duration(d.Attempt))
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET visible_at = ?, lease_token = NULL, last_error = ? WHERE id = ? AND lease_token = ?`,
		visibleAt.UnixNano(), msg, d.ID, d.token,
	)
	if err != nil {
		return fmt.Errorf("failed to nack job %s: %w", d.ID, err)
	}
	return q.checkLease(res, d)
}

func (q *SQLiteQueue) checkLease(res sql.Result, d *Delivery) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if q.logger != nil {
			q.logger.Warn("job lease lost", zap.String("job_id", d.ID), zap.Int("attempt", d.Attempt))
		}
		return fmt.Errorf("job %s: %w", d.ID, ErrLeaseLost)
	}
	return nil
}

// Ready is signalled after Enqueue so in-process workers need not wait for a poll.
func (q *SQLiteQueue) Ready() <-chan struct{} {
	return q.ready
}

// Stats counts queued, in-flight and dead jobs.
func (q *SQLiteQueue) Stats(ctx context.Context) (models.QueueStats, error) {
	var s models.QueueStats
	now := q.now().UnixNano()
	err := q.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN state = ? AND (lease_token IS NULL OR visible_at <= ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? AND lease_token IS NOT NULL AND visible_at > ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state = ? THEN 1 ELSE 0 END), 0)
		 FROM jobs WHERE queue = ?`,
		stateQueued, now, stateQueued, now, stateDead, q.name,
	).Scan(&s.Queued, &s.InFlight, &s.Dead)
	if err != nil {
		return s, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
