package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"go.uber.org/zap"
)

// HandlerFunc executes one task attempt
type HandlerFunc func(ctx context.Context, payload map[string]any) error

// Runner polls the queue and executes due tasks with kind-specific retry
// budgets and timeouts. It implements the background Worker contract.
type Runner struct {
	queue    *SQLiteQueue
	retry    *RetryStrategy
	handlers map[port.TaskKind]HandlerFunc
	interval time.Duration
	batch    int
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRunner creates a task runner
func NewRunner(q *SQLiteQueue, interval time.Duration, batch int, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 20
	}
	return &Runner{
		queue:    q,
		retry:    NewRetryStrategy(),
		handlers: make(map[port.TaskKind]HandlerFunc),
		interval: interval,
		batch:    batch,
		logger:   logger,
	}
}

// Register binds a handler to a task kind. Must be called before Start.
func (r *Runner) Register(kind port.TaskKind, fn HandlerFunc) {
	r.handlers[kind] = fn
}

// Name identifies the worker
func (r *Runner) Name() string { return "task-queue-runner" }

// Start launches the polling loop
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.started = true

	go r.loop(runCtx)
	return nil
}

// Stop halts polling and waits for in-flight tasks
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runBatch(ctx)
		}
	}
}

func (r *Runner) runBatch(ctx context.Context) {
	tasks, err := r.queue.claimDue(ctx, r.batch)
	if err != nil {
		r.logger.Error("Failed to claim due tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		r.execute(ctx, task)
	}
}

// execute runs one task attempt and settles the outcome
func (r *Runner) execute(ctx context.Context, task *Task) {
	handler, ok := r.handlers[task.Kind]
	if !ok {
		r.logger.Error("No handler registered for task kind",
			zap.String("kind", string(task.Kind)),
			zap.Int64("task_id", task.ID))
		_ = r.queue.markFailed(ctx, task.ID, "no handler registered")
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout(task.Kind))
	err := r.safeRun(attemptCtx, handler, task)
	cancel()

	if err == nil {
		if mErr := r.queue.markDone(ctx, task.ID); mErr != nil {
			r.logger.Error("Failed to mark task done", zap.Int64("task_id", task.ID), zap.Error(mErr))
		}
		r.logger.Info("Task completed",
			zap.String("kind", string(task.Kind)),
			zap.Int64("task_id", task.ID),
			zap.Int("attempts", task.Attempts))
		return
	}

	if task.Attempts >= MaxAttempts(task.Kind) {
		r.logger.Error("Task exhausted retry budget",
			zap.String("kind", string(task.Kind)),
			zap.Int64("task_id", task.ID),
			zap.Int("attempts", task.Attempts),
			zap.Error(err))
		_ = r.queue.markFailed(ctx, task.ID, err.Error())
		return
	}

	backoff := r.retry.CalculateBackoff(task.Attempts)
	r.logger.Warn("Task attempt failed, rescheduling",
		zap.String("kind", string(task.Kind)),
		zap.Int64("task_id", task.ID),
		zap.Int("attempt", task.Attempts),
		zap.Duration("backoff", backoff),
		zap.Error(err))
	_ = r.queue.reschedule(ctx, task.ID, time.Now().Add(backoff), err.Error())
}

// safeRun executes the handler with panic recovery
func (r *Runner) safeRun(ctx context.Context, handler HandlerFunc, task *Task) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task handler panic: %v", rec)
			r.logger.Error("Task handler panic recovered",
				zap.String("kind", string(task.Kind)),
				zap.Int64("task_id", task.ID),
				zap.Any("panic", rec))
		}
	}()
	return handler(ctx, task.Payload)
}
