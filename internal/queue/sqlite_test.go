package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/docchat/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue(t *testing.T, opts ...Option) (*SQLiteQueue, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts = append([]Option{WithClock(clock.Now), WithLease(time.Minute), WithRetryBackoff(time.Second)}, opts...)
	q, err := NewSQLiteQueue(filepath.Join(t.TempDir(), "queue.db"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Close() })
	return q, clock
}

func job(name string) models.IngestionJob {
	return models.IngestionJob{DocumentID: "doc-" + name, Filename: name, StoragePath: "/uploads/" + name}
}

func TestSQLiteQueue_EnqueueDequeueAck(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, job("a.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-q.Ready():
	default:
		t.Error("Ready should be signalled after Enqueue")
	}

	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.ID != id {
		t.Fatalf("Dequeue = %+v, want job %s", d, id)
	}
	if d.Job != job("a.pdf") || d.Attempt != 1 {
		t.Errorf("unexpected delivery %+v", d)
	}

	again, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Errorf("leased job should be invisible, got %+v", again)
	}

	stats, _ := q.Stats(ctx)
	if stats.InFlight != 1 || stats.Queued != 0 {
		t.Errorf("stats while leased = %+v", stats)
	}

	if err := q.Ack(ctx, d); err != nil {
		t.Fatal(err)
	}
	stats, _ = q.Stats(ctx)
	if stats != (models.QueueStats{}) {
		t.Errorf("stats after ack = %+v", stats)
	}
}

func TestSQLiteQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	for _, name := range []string{"1.pdf", "2.pdf", "3.pdf"} {
		if _, err := q.Enqueue(ctx, job(name)); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []string{"1.pdf", "2.pdf", "3.pdf"} {
		d, err := q.Dequeue(ctx)
		if err != nil || d == nil {
			t.Fatalf("Dequeue: %v %v", d, err)
		}
		if d.Job.Filename != want {
			t.Errorf("got %s, want %s", d.Job.Filename, want)
		}
	}
}

func TestSQLiteQueue_RedeliveredAfterLeaseExpiry(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()
	id, _ := q.Enqueue(ctx, job("a.pdf"))

	first, _ := q.Dequeue(ctx)
	if first == nil {
		t.Fatal("expected delivery")
	}
	// The worker dies without acking.
	clock.Advance(time.Minute + time.Second)

	second, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil || second.ID != id || second.Attempt != 2 {
		t.Fatalf("expected redelivery of %s on attempt 2, got %+v", id, second)
	}

	if err := q.Ack(ctx, first); !errors.Is(err, ErrLeaseLost) {
		t.Errorf("stale ack error = %v, want ErrLeaseLost", err)
	}
	if err := q.Ack(ctx, second); err != nil {
		t.Errorf("current ack: %v", err)
	}
}

func TestSQLiteQueue_NackRetriesWithBackoff(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()
	q.Enqueue(ctx, job("a.pdf"))

	d, _ := q.Dequeue(ctx)
	if err := q.Nack(ctx, d, errors.New("embedding model unavailable")); err != nil {
		t.Fatal(err)
	}
	if got, _ := q.Dequeue(ctx); got != nil {
		t.Error("nacked job should wait for its backoff")
	}
	clock.Advance(time.Second)
	got, err := q.Dequeue(ctx)
	if err != nil || got == nil {
		t.Fatalf("expected retry after backoff, got %v %v", got, err)
	}
	if got.Attempt != 2 {
		t.Errorf("attempt = %d, want 2", got.Attempt)
	}
}

func TestSQLiteQueue_DeadLetterAfterMaxAttempts(t *testing.T) {
	q, clock := newTestQueue(t, WithMaxAttempts(2))
	ctx := context.Background()
	q.Enqueue(ctx, job("broken.pdf"))

	for attempt := 1; attempt <= 2; attempt++ {
		d, err := q.Dequeue(ctx)
		if err != nil || d == nil {
			t.Fatalf("attempt %d: %v %v", attempt, d, err)
		}
		if err := q.Nack(ctx, d, errors.New("not a PDF")); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Hour)
	}

	if d, _ := q.Dequeue(ctx); d != nil {
		t.Errorf("dead job delivered again: %+v", d)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Dead != 1 || stats.Queued != 0 || stats.InFlight != 0 {
		t.Errorf("stats = %+v, want one dead job", stats)
	}
}

func TestSQLiteQueue_ExpiredLeaseOnLastAttemptIsDead(t *testing.T) {
	q, clock := newTestQueue(t, WithMaxAttempts(2))
	ctx := context.Background()
	q.Enqueue(ctx, job("crashy.pdf"))

	for attempt := 1; attempt <= 2; attempt++ {
		d, err := q.Dequeue(ctx)
		if err != nil || d == nil || d.Attempt != attempt {
			t.Fatalf("attempt %d: %+v %v", attempt, d, err)
		}
		// The worker dies without acking or nacking.
		clock.Advance(time.Minute + time.Second)
	}

	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d != nil {
		t.Fatalf("job delivered past max attempts: %+v", d)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Dead != 1 || stats.Queued != 0 || stats.InFlight != 0 {
		t.Errorf("stats = %+v, want one dead job", stats)
	}
}

func TestSQLiteQueue_SeparateNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	a, err := NewSQLiteQueue(path, WithName("a"))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewSQLiteQueue(path, WithName("b"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	ctx := context.Background()
	a.Enqueue(ctx, job("x.pdf"))
	if d, _ := b.Dequeue(ctx); d != nil {
		t.Errorf("queue b received a job from queue a: %+v", d)
	}
	if d, _ := a.Dequeue(ctx); d == nil {
		t.Error("queue a lost its job")
	}
}

func TestSQLiteQueue_ConcurrentConsumersClaimOnce(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	const jobs = 20
	for i := 0; i < jobs; i++ {
		if _, err := q.Enqueue(ctx, job("doc.pdf")); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				d, err := q.Dequeue(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				if d == nil {
					return
				}
				mu.Lock()
				seen[d.ID]++
				mu.Unlock()
				if err := q.Ack(ctx, d); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), jobs)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}
