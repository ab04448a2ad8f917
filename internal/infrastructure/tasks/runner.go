// Package tasks provides the deferred-task runner used for work that must
// complete after the HTTP response is sent (aggregate refreshes, redirect
// click logging). It is an explicit primitive rather than orphaned
// goroutines: queued tasks survive until Drain returns.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
)

// Task is a unit of deferred work. Errors are logged, never surfaced to the
// request that queued the task.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner executes deferred tasks on a single worker goroutine with a bounded
// queue.
type Runner struct {
	queue   chan Task
	logger  *logging.ChanneledLogger
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewRunner creates a runner and starts its worker.
func NewRunner(queueSize int, logger *logging.ChanneledLogger) *Runner {
	if queueSize <= 0 {
		queueSize = 1
	}
	r := &Runner{
		queue:  make(chan Task, queueSize),
		logger: logger,
	}
	r.wg.Add(1)
	go r.work()
	return r
}

// Defer queues a task without blocking the caller. When the queue is full or
// the runner is draining, the task is dropped and counted; deferred work is
// best-effort by contract.
func (r *Runner) Defer(name string, fn func(ctx context.Context) error) {
	// The closed-check and the send must happen under one lock: Drain closes
	// the queue under the same lock, and a send racing that close would panic.
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Tasks().Error("Task rejected, runner is draining", "task", name)
		return
	}

	select {
	case r.queue <- Task{Name: name, Run: fn}:
		r.mu.Unlock()
		r.logger.Tasks().Debug("Task queued", "task", name)
	default:
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Tasks().Error("Task dropped, queue full", "task", name, "totalDropped", dropped)
	}
}

// Drain stops accepting new tasks and waits for queued work to finish, up to
// the context deadline. This is the shutdown guarantee that queued aggregate
// updates still execute after the last response is sent.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Tasks().Info("Task runner drained")
		return nil
	case <-ctx.Done():
		r.logger.Tasks().Error("Task runner drain timed out", "error", ctx.Err().Error())
		return ctx.Err()
	}
}

func (r *Runner) work() {
	defer r.wg.Done()

	for task := range r.queue {
		start := time.Now()
		err := task.Run(context.Background())
		if err != nil {
			r.logger.Tasks().Error("Deferred task failed", "task", task.Name, "error", err.Error(), "duration", time.Since(start))
			continue
		}
		r.logger.Tasks().Debug("Deferred task completed", "task", task.Name, "duration", time.Since(start))
	}
}
