package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// Task statuses
const (
	statusPending = "pending"
	statusRunning = "running"
	statusDone    = "done"
	statusFailed  = "failed"
)

// Task is one queued unit of background work
type Task struct {
	ID            int64
	Kind          port.TaskKind
	Payload       map[string]any
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SQLiteQueue is a durable task queue on the application database. Tasks
// survive restarts; execution is at-least-once within each kind's retry
// budget.
type SQLiteQueue struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteQueue creates a new queue
func NewSQLiteQueue(db *sql.DB, logger *zap.Logger) *SQLiteQueue {
	return &SQLiteQueue{
		db:     db,
		logger: logger,
	}
}

// Enqueue implements port.TaskQueue. Enqueued inside a transaction, the task
// becomes visible only when the surrounding work commits.
func (q *SQLiteQueue) Enqueue(ctx context.Context, kind port.TaskKind, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	query := `
		INSERT INTO background_tasks (kind, payload, status, attempts, next_attempt_at)
		VALUES (?, ?, ?, 0, ?)
	`
	_, err = sqlite.ExecutorFrom(ctx, q.db).ExecContext(ctx, query,
		string(kind), string(body), statusPending, time.Now())
	if err != nil {
		q.logger.Error("Failed to enqueue task", zap.String("kind", string(kind)), zap.Error(err))
		return fmt.Errorf("enqueue %s task: %w", kind, err)
	}

	q.logger.Info("Task enqueued", zap.String("kind", string(kind)))
	return nil
}

// claimDue marks up to limit due tasks as running and returns them. The
// single-writer database makes the claim atomic without row locks.
func (q *SQLiteQueue) claimDue(ctx context.Context, limit int) ([]*Task, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kind, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM background_tasks
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at
		LIMIT ?
	`, statusPending, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var t Task
		var kind, payload string
		var lastError sql.NullString
		if err := rows.Scan(&t.ID, &kind, &payload, &t.Status, &t.Attempts,
			&t.NextAttemptAt, &lastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Kind = port.TaskKind(kind)
		t.LastError = lastError.String
		if err := json.Unmarshal([]byte(payload), &t.Payload); err != nil {
			q.logger.Error("Task payload corrupt, marking failed", zap.Int64("task_id", t.ID), zap.Error(err))
			_ = q.markFailed(ctx, t.ID, fmt.Sprintf("corrupt payload: %v", err))
			continue
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claimed := tasks[:0]
	for _, t := range tasks {
		res, err := q.db.ExecContext(ctx, `
			UPDATE background_tasks
			SET status = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?
		`, statusRunning, t.ID, statusPending)
		if err != nil {
			return nil, fmt.Errorf("claim task %d: %w", t.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			t.Attempts++
			t.Status = statusRunning
			claimed = append(claimed, t)
		}
	}
	return claimed, nil
}

// markDone records successful completion
func (q *SQLiteQueue) markDone(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE background_tasks SET status = ?, last_error = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, statusDone, id)
	return err
}

// reschedule puts a failed attempt back in the queue with backoff
func (q *SQLiteQueue) reschedule(ctx context.Context, id int64, at time.Time, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE background_tasks
		SET status = ?, next_attempt_at = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, statusPending, at, errMsg, id)
	return err
}

// markFailed parks a task that exhausted its retry budget
func (q *SQLiteQueue) markFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE background_tasks SET status = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, statusFailed, id, errMsg)
	return err
}

// Verify interface compliance
var _ port.TaskQueue = (*SQLiteQueue)(nil)
