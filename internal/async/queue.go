// Package async runs pipeline selections in the background on a small worker pool.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("run queue is shutting down")

// Job is one queued selection.
type Job struct {
	ID          string
	Selector    string
	SubmittedAt time.Time
	RequestID   string
}

// Runner runs the categories a selector names.
type Runner interface {
	RunSelection(ctx context.Context, selector string) ([]entity.BatchReport, error)
}

// ResultFunc observes each finished job.
type ResultFunc func(job Job, reports []entity.BatchReport, err error)

type RunQueue struct {
	runner   Runner
	logger   *slog.Logger
	workers  int
	timeout  time.Duration
	onResult ResultFunc

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// done is closed by Shutdown to release blocked senders; ch is closed
	// only after every sender counted in senders has returned.
	done    chan struct{}
	senders sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

type Option func(*RunQueue)

func WithWorkers(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithRunTimeout(d time.Duration) Option {
	return func(q *RunQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}
func WithResultFunc(fn ResultFunc) Option {
	return func(q *RunQueue) { q.onResult = fn }
}

func NewRunQueue(runner Runner, logger *slog.Logger, opts ...Option) *RunQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RunQueue{
		runner:  runner,
		logger:  logger,
		workers: 1,
		timeout: 20 * time.Minute,
		ch:      make(chan Job, 16),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *RunQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.run(workerID, job)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *RunQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	start := time.Now()
	reports, err := q.runner.RunSelection(ctx, job.Selector)
	if err != nil {
		q.logger.Error("async.run.failed", "worker_id", workerID, "job_id", job.ID, "selector", job.Selector, "error", err)
	} else {
		q.logger.Info("async.run.ok", "worker_id", workerID, "job_id", job.ID, "selector", job.Selector,
			"reports", len(reports), "elapsed_ms", time.Since(start).Milliseconds())
	}
	if q.onResult != nil {
		q.onResult(job, reports, err)
	}
}

// Enqueue queues selector and returns the job. A full queue blocks until a
// slot frees, ctx ends or Shutdown starts.
func (q *RunQueue) Enqueue(ctx context.Context, selector string) (Job, error) {
	job := Job{
		ID:          uuid.NewString(),
		Selector:    selector,
		SubmittedAt: time.Now(),
		RequestID:   common.RequestIDFromContext(ctx),
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "selector", selector)
		return Job{}, ErrClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.ch <- job:
		q.logger.Info("queued run", "job_id", job.ID, "selector", selector)
		return job, nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "selector", selector)
	select {
	case q.ch <- job:
		q.logger.Info("queued run", "job_id", job.ID, "selector", selector)
		return job, nil
	case <-q.done:
		return Job{}, ErrClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Schedule enqueues selector every interval until ctx ends.
func (q *RunQueue) Schedule(ctx context.Context, interval time.Duration, selector string) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	q.logger.Info("async.schedule.start", "interval", interval.String(), "selector", selector)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := q.Enqueue(ctx, selector); err != nil {
				q.logger.Warn("async.schedule.enqueue_failed", "error", err)
				if errors.Is(err, ErrClosed) {
					return
				}
			}
		}
	}
}

func (q *RunQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	q.senders.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
