// Package tasks runs detached background work on a bounded worker pool.
// Handlers submit long-running TNS calls here so HTTP requests return
// immediately; results reach clients through refresh notifications.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"transient-broker/backend/internal/metrics"
)

// ErrQueueFull is returned when the queue cannot take another task. Callers
// surface it as backpressure instead of blocking the request.
var ErrQueueFull = errors.New("task queue is full")

// ErrStopped is returned for submissions after Shutdown began.
var ErrStopped = errors.New("task runner is stopped")

type task struct {
	name string
	fn   func(context.Context) error
}

// Runner is a fixed-size worker pool over a bounded queue. Tasks run detached
// from the submitting request: they get the runner's context, which outlives
// the request and is canceled only by Shutdown's deadline.
type Runner struct {
	queue  chan task
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New starts a runner with the given number of workers and queue capacity.
func New(workers, queueSize int, logger *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		queue:  make(chan task, queueSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Submit enqueues a task. It never blocks: a full queue yields ErrQueueFull.
func (r *Runner) Submit(name string, fn func(context.Context) error) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	select {
	case r.queue <- task{name: name, fn: fn}:
		r.mu.Unlock()
		metrics.TasksStarted.WithLabelValues(name).Inc()
		return nil
	default:
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrQueueFull)
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When ctx
// expires first, running tasks are canceled through the runner context.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for t := range r.queue {
		r.run(t)
	}
}

func (r *Runner) run(t task) {
	defer func() {
		if p := recover(); p != nil {
			metrics.TasksFailed.WithLabelValues(t.name).Inc()
			r.logger.Error("task panicked",
				zap.String("task", t.name), zap.Any("panic", p))
		}
	}()
	if err := t.fn(r.ctx); err != nil {
		metrics.TasksFailed.WithLabelValues(t.name).Inc()
		r.logger.Error("task failed",
			zap.String("task", t.name), zap.Error(err))
	}
}
