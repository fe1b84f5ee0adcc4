package service

import (
	"context"
	"fmt"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/methodology"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// TemplateService manages form template configuration
type TemplateService interface {
	// CreateTemplate stores a new template draft. When the template names a
	// funder methodology, the matching compliance adapter runs before the
	// template is stored.
	CreateTemplate(ctx context.Context, tpl *template.Template) error

	// GetTemplate retrieves a template by id
	GetTemplate(ctx context.Context, id int64) (*template.Template, error)

	// ListTemplates retrieves a tenant's templates with pagination
	ListTemplates(ctx context.Context, tenantID string, limit, offset int) ([]*template.Template, error)

	// UpdateTemplate replaces an unpublished template's configuration.
	// Published templates are immutable; updating one produces a new
	// unpublished version instead.
	UpdateTemplate(ctx context.Context, tpl *template.Template) (*template.Template, error)

	// PublishTemplate freezes the template so instances can be created
	// against it
	PublishTemplate(ctx context.Context, id int64) error

	// ApplyMethodology re-runs the funder compliance adapter on a template
	ApplyMethodology(ctx context.Context, id int64, m template.Methodology) (*template.Template, error)
}

type templateServiceImpl struct {
	templates     port.TemplateRepository
	methodologies *methodology.Registry
	logger        Logger
}

// NewTemplateService creates a new TemplateService
func NewTemplateService(templates port.TemplateRepository, methodologies *methodology.Registry, logger Logger) TemplateService {
	return &templateServiceImpl{
		templates:     templates,
		methodologies: methodologies,
		logger:        logger,
	}
}

// CreateTemplate stores a new template draft
func (s *templateServiceImpl) CreateTemplate(ctx context.Context, tpl *template.Template) error {
	if err := validateTemplate(tpl); err != nil {
		return err
	}

	s.methodologies.Adapt(tpl)

	now := time.Now()
	tpl.Version = 1
	tpl.Published = false
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	if err := s.templates.Create(ctx, tpl); err != nil {
		s.logger.Error("Failed to create template", "error", err, "tenant_id", tpl.TenantID, "name", tpl.Name)
		return fmt.Errorf("create template: %w", err)
	}

	s.logger.Info("Template created",
		"template_id", tpl.ID,
		"tenant_id", tpl.TenantID,
		"name", tpl.Name,
		"methodology", tpl.Methodology,
	)
	return nil
}

// GetTemplate retrieves a template by id
func (s *templateServiceImpl) GetTemplate(ctx context.Context, id int64) (*template.Template, error) {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get template", "error", err, "template_id", id)
		return nil, err
	}
	return tpl, nil
}

// ListTemplates retrieves a tenant's templates with pagination
func (s *templateServiceImpl) ListTemplates(ctx context.Context, tenantID string, limit, offset int) ([]*template.Template, error) {
	tpls, err := s.templates.ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list templates", "error", err, "tenant_id", tenantID)
		return nil, err
	}
	return tpls, nil
}

// UpdateTemplate replaces an unpublished template, or versions a published one
func (s *templateServiceImpl) UpdateTemplate(ctx context.Context, tpl *template.Template) (*template.Template, error) {
	if err := validateTemplate(tpl); err != nil {
		return nil, err
	}

	current, err := s.templates.GetByID(ctx, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", tpl.ID, err)
	}

	s.methodologies.Adapt(tpl)
	tpl.UpdatedAt = time.Now()

	if current.Published {
		// Immutable once published: store the change as a new version
		next := *tpl
		next.ID = 0
		next.Version = current.Version + 1
		next.Published = false
		next.CreatedAt = time.Now()

		if err := s.templates.Create(ctx, &next); err != nil {
			s.logger.Error("Failed to version template", "error", err, "template_id", tpl.ID)
			return nil, fmt.Errorf("version template: %w", err)
		}

		s.logger.Info("Published template versioned",
			"template_id", current.ID,
			"new_template_id", next.ID,
			"version", next.Version,
		)
		return &next, nil
	}

	tpl.Version = current.Version
	if err := s.templates.Update(ctx, tpl); err != nil {
		s.logger.Error("Failed to update template", "error", err, "template_id", tpl.ID)
		return nil, fmt.Errorf("update template: %w", err)
	}

	s.logger.Info("Template updated", "template_id", tpl.ID, "version", tpl.Version)
	return tpl, nil
}

// PublishTemplate freezes the template
func (s *templateServiceImpl) PublishTemplate(ctx context.Context, id int64) error {
	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load template %d: %w", id, err)
	}
	if tpl.Published {
		s.logger.Info("Template already published", "template_id", id)
		return nil
	}
	if len(tpl.Steps) == 0 {
		return fmt.Errorf("template %d has no form steps, cannot publish", id)
	}

	if err := s.templates.MarkPublished(ctx, id); err != nil {
		s.logger.Error("Failed to publish template", "error", err, "template_id", id)
		return fmt.Errorf("publish template: %w", err)
	}

	s.logger.Info("Template published", "template_id", id, "version", tpl.Version)
	return nil
}

// ApplyMethodology re-runs the funder compliance adapter on a template
func (s *templateServiceImpl) ApplyMethodology(ctx context.Context, id int64, m template.Methodology) (*template.Template, error) {
	if m != template.MethodologyNone && !m.IsKnown() {
		return nil, fmt.Errorf("unknown methodology %q", m)
	}

	tpl, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", id, err)
	}
	if tpl.Published {
		return nil, fmt.Errorf("template %d is published, apply the methodology on a new version", id)
	}

	tpl.Methodology = m
	s.methodologies.Adapt(tpl)
	tpl.UpdatedAt = time.Now()

	if err := s.templates.Update(ctx, tpl); err != nil {
		s.logger.Error("Failed to store adapted template", "error", err, "template_id", id)
		return nil, fmt.Errorf("store adapted template: %w", err)
	}

	s.logger.Info("Methodology applied", "template_id", id, "methodology", m)
	return tpl, nil
}

// validateTemplate checks structural invariants shared by create and update
func validateTemplate(tpl *template.Template) error {
	if tpl.TenantID == "" {
		return fmt.Errorf("template has no tenant")
	}
	if tpl.Name == "" {
		return fmt.Errorf("template has no name")
	}

	seen := make(map[string]bool)
	for _, f := range tpl.Fields() {
		if f.ID == "" {
			return fmt.Errorf("template field without id")
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate field id %q", f.ID)
		}
		seen[f.ID] = true
	}

	for _, step := range tpl.Workflow.Steps {
		if step.Name == "" {
			return fmt.Errorf("workflow step without name")
		}
		if step.ApproverRole == "" {
			return fmt.Errorf("workflow step %q has no approver role", step.Name)
		}
	}

	for _, tr := range tpl.Triggers {
		if !tr.Action.IsValid() {
			return fmt.Errorf("trigger %q has unknown action %q", tr.ID, tr.Action)
		}
	}

	return nil
}
