package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository. The table is
// append-only; there are no UPDATE or DELETE statements here and none should
// ever be added.
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit record
func (r *HistoryRepository) Append(ctx context.Context, entry *form.HistoryEntry) error {
	query := `
		INSERT INTO instance_history (
			instance_id, actor, action,
			previous_status, new_status, resulting_step,
			notes, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entry.InstanceID,
		entry.Actor,
		entry.Action,
		string(entry.PreviousStatus),
		string(entry.NewStatus),
		entry.ResultingStep,
		entry.Notes,
		entry.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append history entry",
			zap.Int64("instance_id", entry.InstanceID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByInstance returns an instance's audit trail oldest first
func (r *HistoryRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*form.HistoryEntry, error) {
	query := `
		SELECT id, instance_id, actor, action,
			previous_status, new_status, resulting_step,
			notes, timestamp
		FROM instance_history
		WHERE instance_id = ?
		ORDER BY id
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*form.HistoryEntry
	for rows.Next() {
		var e form.HistoryEntry
		var prev, next string
		err := rows.Scan(
			&e.ID,
			&e.InstanceID,
			&e.Actor,
			&e.Action,
			&prev,
			&next,
			&e.ResultingStep,
			&e.Notes,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.PreviousStatus = form.Status(prev)
		e.NewStatus = form.Status(next)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountByInstance returns the number of audit records for an instance
func (r *HistoryRepository) CountByInstance(ctx context.Context, instanceID int64) (int, error) {
	var count int
	err := sqlite.ExecutorFrom(ctx, r.db).
		QueryRowContext(ctx, `SELECT COUNT(*) FROM instance_history WHERE instance_id = ?`, instanceID).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
