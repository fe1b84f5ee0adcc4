package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// TemplateRepository implements port.TemplateRepository. The structured
// configuration (steps, rules, workflow, triggers) is stored as JSON columns;
// the engine always works on whole templates, never on individual rules.
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) port.TemplateRepository {
	return &TemplateRepository{
		db:     db,
		logger: logger,
	}
}

const templateColumns = `
	id, tenant_id, category, name, version, published,
	methodology, compliance_level,
	steps, validation_rules, workflow, escalation_rules, triggers,
	created_at, updated_at
`

// Create stores a new template
func (r *TemplateRepository) Create(ctx context.Context, tpl *template.Template) error {
	query := `
		INSERT INTO form_templates (
			tenant_id, category, name, version, published,
			methodology, compliance_level,
			steps, validation_rules, workflow, escalation_rules, triggers,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	cols, err := marshalTemplateColumns(tpl)
	if err != nil {
		return err
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		tpl.TenantID,
		tpl.Category,
		tpl.Name,
		tpl.Version,
		tpl.Published,
		string(tpl.Methodology),
		string(tpl.ComplianceLevel),
		cols.steps,
		cols.rules,
		cols.workflow,
		cols.escalations,
		cols.triggers,
		tpl.CreatedAt,
		tpl.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.Error(err), zap.String("tenant_id", tpl.TenantID))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	tpl.ID = id
	return nil
}

// GetByID retrieves a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*template.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM form_templates WHERE id = ?`

	tpl, err := scanTemplate(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template %d not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// ListByTenant retrieves a tenant's templates with pagination
func (r *TemplateRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*template.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM form_templates
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*template.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// Update replaces a template's stored configuration
func (r *TemplateRepository) Update(ctx context.Context, tpl *template.Template) error {
	query := `
		UPDATE form_templates
		SET category = ?, name = ?, version = ?,
			methodology = ?, compliance_level = ?,
			steps = ?, validation_rules = ?, workflow = ?, escalation_rules = ?, triggers = ?,
			updated_at = ?
		WHERE id = ?
	`

	cols, err := marshalTemplateColumns(tpl)
	if err != nil {
		return err
	}

	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		tpl.Category,
		tpl.Name,
		tpl.Version,
		string(tpl.Methodology),
		string(tpl.ComplianceLevel),
		cols.steps,
		cols.rules,
		cols.workflow,
		cols.escalations,
		cols.triggers,
		tpl.UpdatedAt,
		tpl.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update template", zap.Int64("id", tpl.ID), zap.Error(err))
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// MarkPublished freezes a template
func (r *TemplateRepository) MarkPublished(ctx context.Context, id int64) error {
	query := `UPDATE form_templates SET published = TRUE, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to publish template", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to publish template: %w", err)
	}
	return nil
}

// templateJSON holds the marshalled JSON columns
type templateJSON struct {
	steps       string
	rules       string
	workflow    string
	escalations string
	triggers    string
}

func marshalTemplateColumns(tpl *template.Template) (templateJSON, error) {
	var cols templateJSON
	var err error

	if cols.steps, err = marshalJSON(tpl.Steps); err != nil {
		return cols, fmt.Errorf("marshal steps: %w", err)
	}
	if cols.rules, err = marshalJSON(tpl.ValidationRules); err != nil {
		return cols, fmt.Errorf("marshal validation rules: %w", err)
	}
	if cols.workflow, err = marshalJSON(tpl.Workflow); err != nil {
		return cols, fmt.Errorf("marshal workflow: %w", err)
	}
	if cols.escalations, err = marshalJSON(tpl.EscalationRules); err != nil {
		return cols, fmt.Errorf("marshal escalation rules: %w", err)
	}
	if cols.triggers, err = marshalJSON(tpl.Triggers); err != nil {
		return cols, fmt.Errorf("marshal triggers: %w", err)
	}
	return cols, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*template.Template, error) {
	var tpl template.Template
	var methodology, level string
	var steps, rules, workflow, escalations, triggers string

	err := row.Scan(
		&tpl.ID,
		&tpl.TenantID,
		&tpl.Category,
		&tpl.Name,
		&tpl.Version,
		&tpl.Published,
		&methodology,
		&level,
		&steps,
		&rules,
		&workflow,
		&escalations,
		&triggers,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tpl.Methodology = template.Methodology(methodology)
	tpl.ComplianceLevel = template.ComplianceLevel(level)

	if err := json.Unmarshal([]byte(steps), &tpl.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &tpl.ValidationRules); err != nil {
		return nil, fmt.Errorf("unmarshal validation rules: %w", err)
	}
	if err := json.Unmarshal([]byte(workflow), &tpl.Workflow); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	if err := json.Unmarshal([]byte(escalations), &tpl.EscalationRules); err != nil {
		return nil, fmt.Errorf("unmarshal escalation rules: %w", err)
	}
	if err := json.Unmarshal([]byte(triggers), &tpl.Triggers); err != nil {
		return nil, fmt.Errorf("unmarshal triggers: %w", err)
	}

	return &tpl, nil
}

// Verify interface compliance
var _ port.TemplateRepository = (*TemplateRepository)(nil)
