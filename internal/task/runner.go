package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Task is one unit of deferred work.
type Task struct {
	Name string
	Fn   func(ctx context.Context)
}

// Runner executes fire-and-forget side effects on a fixed pool of workers
// over a bounded queue. Submission never blocks: when the queue is full the
// task is dropped with a warning, so a stalled sink can never stall the
// request path that submitted it. Each task runs under panic recovery with
// its own context, detached from the request that spawned it.
type Runner struct {
	queue  chan Task
	wg     sync.WaitGroup
	closed atomic.Bool
	once   sync.Once
}

// NewRunner creates a Runner with the given worker count and queue depth
// and starts its workers.
func NewRunner(workers, depth int) *Runner {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	r := &Runner{queue: make(chan Task, depth)}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
	return r
}

// Submit enqueues a task without blocking and reports whether it was
// accepted. After Shutdown all submissions are rejected.
func (r *Runner) Submit(name string, fn func(ctx context.Context)) bool {
	if r.closed.Load() {
		return false
	}
	select {
	case r.queue <- Task{Name: name, Fn: fn}:
		return true
	default:
		slog.Warn("background task dropped, queue full", "task", name)
		return false
	}
}

// Shutdown stops accepting tasks and waits for in-flight and queued tasks
// to drain, or for the context to expire.
func (r *Runner) Shutdown(ctx context.Context) {
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.queue)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("background tasks abandoned at shutdown", "error", ctx.Err())
	}
}

func (r *Runner) work(id int) {
	defer r.wg.Done()
	for t := range r.queue {
		r.runOne(id, t)
	}
}

func (r *Runner) runOne(id int, t Task) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("background task panicked",
				"task", t.Name, "worker", id, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	start := time.Now()
	t.Fn(context.Background())
	slog.Debug("background task done", "task", t.Name, "duration", time.Since(start))
}
