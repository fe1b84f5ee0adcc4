package port

import (
	"context"

	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/domain/template"
)

// TemplateRepository defines persistence operations for form templates
type TemplateRepository interface {
	Create(ctx context.Context, tpl *template.Template) error
	GetByID(ctx context.Context, id int64) (*template.Template, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*template.Template, error)
	Update(ctx context.Context, tpl *template.Template) error
	MarkPublished(ctx context.Context, id int64) error
}

// InstanceRepository defines persistence operations for form instances
type InstanceRepository interface {
	Create(ctx context.Context, inst *form.Instance) error
	GetByID(ctx context.Context, id int64) (*form.Instance, error)
	// GetForUpdate reads the instance while holding an exclusive row claim.
	// Must be called inside a transaction; the claim lasts until the
	// transaction ends, so one workflow transition cannot interleave with
	// another on the same instance.
	GetForUpdate(ctx context.Context, id int64) (*form.Instance, error)
	Update(ctx context.Context, inst *form.Instance) error
	ListByTemplate(ctx context.Context, templateID int64, limit, offset int) ([]*form.Instance, error)
	// ListOpen returns non-terminal instances for SLA escalation scanning
	ListOpen(ctx context.Context, tenantID string, limit int) ([]*form.Instance, error)
}

// HistoryRepository defines persistence operations for the append-only
// workflow audit log. There is deliberately no update or delete.
type HistoryRepository interface {
	Append(ctx context.Context, entry *form.HistoryEntry) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*form.HistoryEntry, error)
	CountByInstance(ctx context.Context, instanceID int64) (int, error)
}

// TransactionManager runs a function inside one database transaction.
// Repository calls made with the given context join that transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
