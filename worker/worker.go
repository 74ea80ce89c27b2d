// Package worker drains the task queue in the background.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/varannik/dental-saas/queue"
)

// HandlerFunc processes one task. Returning an error leaves the task
// unacknowledged so it is retried or dead-lettered by reclaim; handlers
// must therefore be idempotent.
type HandlerFunc func(ctx context.Context, task *queue.Task) error

// Worker is a single queue consumer loop.
type Worker struct {
	queue    *queue.Queue
	consumer string
	backoff  time.Duration
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// New creates a worker with a unique consumer identity.
func New(q *queue.Queue, backoff time.Duration, logger *slog.Logger) *Worker {
	consumer := "worker-" + uuid.NewString()[:8]
	return &Worker{
		queue:    q,
		consumer: consumer,
		backoff:  backoff,
		handlers: make(map[string]HandlerFunc),
		logger:   logger.With("component", "worker", "consumer", consumer),
	}
}

// Handle registers the handler for a task type.
func (w *Worker) Handle(taskType string, fn HandlerFunc) {
	w.handlers[taskType] = fn
}

// Consumer returns this worker's consumer-group identity.
func (w *Worker) Consumer() string {
	return w.consumer
}

// Run consumes tasks until the context is cancelled. Queue reads use a
// bounded block so cancellation is observed promptly, and any read or
// ack error backs the loop off by a fixed delay to avoid a hot failure
// loop.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("worker setup: %w", err)
	}
	w.logger.Info("worker started")

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopped")
			return nil
		}

		task, err := w.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("queue read failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if task == nil {
			continue
		}

		if err := w.process(ctx, task); err != nil {
			// Leave the task unacknowledged; reclaim will retry it
			// elsewhere or dead-letter it after the delivery budget.
			w.logger.Error("task processing failed", "task_id", task.ID, "type", task.Type, "error", err)
			continue
		}

		if err := w.queue.Ack(ctx, task); err != nil {
			w.logger.Error("task ack failed", "task_id", task.ID, "error", err)
			w.sleep(ctx)
		}
	}
}

// next prefers reclaiming an abandoned task over reading a fresh one.
func (w *Worker) next(ctx context.Context) (*queue.Task, error) {
	task, err := w.queue.Reclaim(ctx, w.consumer)
	if err != nil {
		return nil, err
	}
	if task != nil {
		w.logger.Info("reclaimed abandoned task", "task_id", task.ID, "deliveries", task.Deliveries)
		return task, nil
	}
	return w.queue.Read(ctx, w.consumer)
}

func (w *Worker) process(ctx context.Context, task *queue.Task) error {
	handler, ok := w.handlers[task.Type]
	if !ok {
		return fmt.Errorf("no handler for task type %q", task.Type)
	}

	w.logger.Info("processing task", "task_id", task.ID, "type", task.Type)
	return handler(ctx, task)
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-time.After(w.backoff):
	case <-ctx.Done():
	}
}
