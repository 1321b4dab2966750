package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

type countingRunner struct {
	mu        sync.Mutex
	selectors []string
	reqIDs    []string
}

func (r *countingRunner) RunSelection(ctx context.Context, selector string) ([]entity.BatchReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selectors = append(r.selectors, selector)
	r.reqIDs = append(r.reqIDs, common.RequestIDFromContext(ctx))
	if selector == "bad" {
		return nil, errors.New("boom")
	}
	return []entity.BatchReport{{}}, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunQueueRunsJobsAndDrains(t *testing.T) {
	r := &countingRunner{}
	var (
		mu      sync.Mutex
		results = map[string]error{}
	)
	q := NewRunQueue(r, quiet(), WithWorkers(2), WithQueueSize(4), WithResultFunc(func(job Job, _ []entity.BatchReport, err error) {
		mu.Lock()
		results[job.Selector] = err
		mu.Unlock()
	}))

	ctx := common.WithRequestID(context.Background(), "req-1")
	for _, sel := range []string{"grain", "bad"} {
		if _, err := q.Enqueue(ctx, sel); err != nil {
			t.Fatalf("enqueue %s: %v", sel, err)
		}
	}
	q.Shutdown(context.Background())

	if len(results) != 2 || results["grain"] != nil || results["bad"] == nil {
		t.Fatalf("results = %v", results)
	}
	for _, id := range r.reqIDs {
		if id != "req-1" {
			t.Fatalf("request id not propagated: %v", r.reqIDs)
		}
	}
	if _, err := q.Enqueue(ctx, "grain"); !errors.Is(err, ErrClosed) {
		t.Fatalf("enqueue after shutdown = %v", err)
	}
}

func TestScheduleEnqueuesUntilCancelled(t *testing.T) {
	r := &countingRunner{}
	q := NewRunQueue(r, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	q.Schedule(ctx, 10*time.Millisecond, "all")
	q.Shutdown(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.selectors) == 0 {
		t.Fatal("schedule never enqueued")
	}
	for _, s := range r.selectors {
		if s != "all" {
			t.Fatalf("selector = %q", s)
		}
	}
}

// gatedRunner holds every run until release is closed.
type gatedRunner struct {
	started chan string
	release chan struct{}
}

func (r *gatedRunner) RunSelection(_ context.Context, selector string) ([]entity.BatchReport, error) {
	r.started <- selector
	<-r.release
	return nil, nil
}

func TestShutdownReleasesBlockedEnqueue(t *testing.T) {
	r := &gatedRunner{started: make(chan string, 4), release: make(chan struct{})}
	q := NewRunQueue(r, quiet(), WithWorkers(1), WithQueueSize(1))
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	<-r.started
	if _, err := q.Enqueue(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(ctx, "c")
		blocked <- err
	}()
	time.Sleep(20 * time.Millisecond)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		q.Shutdown(ctx)
	}()

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked enqueue = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked enqueue not released by shutdown")
	}

	close(r.release)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not drain")
	}
	if got := <-r.started; got != "b" {
		t.Fatalf("queued job %q, want b", got)
	}
}

func TestEnqueueFullQueueHonoursContext(t *testing.T) {
	r := &gatedRunner{started: make(chan string, 4), release: make(chan struct{})}
	q := NewRunQueue(r, quiet(), WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(r.release)
		q.Shutdown(context.Background())
	}()

	if _, err := q.Enqueue(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	<-r.started
	if _, err := q.Enqueue(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Enqueue(ctx, "c"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("enqueue on a full queue = %v", err)
	}
}
