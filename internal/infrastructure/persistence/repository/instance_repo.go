package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) port.InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `
	id, tenant_id, template_id, created_by, status,
	data, state, submitted_at, created_at, updated_at
`

// Create stores a new instance
func (r *InstanceRepository) Create(ctx context.Context, inst *form.Instance) error {
	query := `
		INSERT INTO form_instances (
			tenant_id, template_id, created_by, status,
			data, state, submitted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	data, state, err := marshalInstanceColumns(inst)
	if err != nil {
		return err
	}

	var submittedAt sql.NullTime
	if inst.SubmittedAt != nil {
		submittedAt = sql.NullTime{Time: *inst.SubmittedAt, Valid: true}
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		inst.TenantID,
		inst.TemplateID,
		inst.CreatedBy,
		string(inst.Status),
		data,
		state,
		submittedAt,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err), zap.Int64("template_id", inst.TemplateID))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	inst.ID = id
	return nil
}

// GetByID retrieves an instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*form.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM form_instances WHERE id = ?`

	inst, err := scanInstance(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instance %d not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// GetForUpdate reads the instance while holding the write lock. SQLite has
// no SELECT ... FOR UPDATE; issuing a no-op write on the row inside the
// transaction upgrades it to a writer, which serializes concurrent
// transitions on the same instance.
func (r *InstanceRepository) GetForUpdate(ctx context.Context, id int64) (*form.Instance, error) {
	if sqlite.ExtractTx(ctx) == nil {
		return nil, fmt.Errorf("GetForUpdate requires a transaction")
	}

	claim := `UPDATE form_instances SET id = id WHERE id = ?`
	res, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, claim, id)
	if err != nil {
		r.logger.Error("Failed to claim instance row", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to claim instance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("instance %d not found", id)
	}

	return r.GetByID(ctx, id)
}

// Update replaces the instance's mutable columns
func (r *InstanceRepository) Update(ctx context.Context, inst *form.Instance) error {
	query := `
		UPDATE form_instances
		SET status = ?, data = ?, state = ?, submitted_at = ?, updated_at = ?
		WHERE id = ?
	`

	data, state, err := marshalInstanceColumns(inst)
	if err != nil {
		return err
	}

	var submittedAt sql.NullTime
	if inst.SubmittedAt != nil {
		submittedAt = sql.NullTime{Time: *inst.SubmittedAt, Valid: true}
	}

	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		string(inst.Status),
		data,
		state,
		submittedAt,
		inst.UpdatedAt,
		inst.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.Int64("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return nil
}

// ListByTemplate retrieves instances of a template with pagination
func (r *InstanceRepository) ListByTemplate(ctx context.Context, templateID int64, limit, offset int) ([]*form.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM form_instances
		WHERE template_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, templateID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Int64("template_id", templateID), zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

// ListOpen returns non-terminal instances for SLA escalation scanning
func (r *InstanceRepository) ListOpen(ctx context.Context, tenantID string, limit int) ([]*form.Instance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM form_instances
		WHERE tenant_id = ? AND status NOT IN ('completed', 'rejected', 'cancelled')
		ORDER BY submitted_at
		LIMIT ?
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		r.logger.Error("Failed to list open instances", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, fmt.Errorf("failed to list open instances: %w", err)
	}
	defer rows.Close()

	return scanInstances(rows)
}

func marshalInstanceColumns(inst *form.Instance) (data, state string, err error) {
	if data, err = marshalJSON(inst.Data); err != nil {
		return "", "", fmt.Errorf("marshal instance data: %w", err)
	}
	if state, err = marshalJSON(inst.State); err != nil {
		return "", "", fmt.Errorf("marshal workflow state: %w", err)
	}
	return data, state, nil
}

func scanInstance(row rowScanner) (*form.Instance, error) {
	var inst form.Instance
	var status, data, state string
	var submittedAt sql.NullTime

	err := row.Scan(
		&inst.ID,
		&inst.TenantID,
		&inst.TemplateID,
		&inst.CreatedBy,
		&status,
		&data,
		&state,
		&submittedAt,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Status = form.Status(status)
	if submittedAt.Valid {
		inst.SubmittedAt = &submittedAt.Time
	}
	if err := json.Unmarshal([]byte(data), &inst.Data); err != nil {
		return nil, fmt.Errorf("unmarshal instance data: %w", err)
	}
	if err := json.Unmarshal([]byte(state), &inst.State); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return &inst, nil
}

func scanInstances(rows *sql.Rows) ([]*form.Instance, error) {
	var instances []*form.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
