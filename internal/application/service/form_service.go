package service

import (
	"context"
	"fmt"
	"time"

	"github.com/formdesk/flowengine/internal/application/dispatcher"
	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/engine/workflow"
)

// FormService manages form instances through their lifecycle
type FormService interface {
	// CreateInstance creates a draft instance against a published template
	CreateInstance(ctx context.Context, tenantID string, templateID int64, createdBy string, data map[string]any) (*form.Instance, error)

	// GetInstance retrieves an instance by id
	GetInstance(ctx context.Context, id int64) (*form.Instance, error)

	// UpdateDraft replaces a draft instance's data; only the creator may edit
	UpdateDraft(ctx context.Context, id int64, actorID string, data map[string]any) (*form.Instance, error)

	// Transition applies a workflow action inside one transaction holding an
	// exclusive claim on the instance row, then raises the resulting
	// lifecycle events
	Transition(ctx context.Context, instanceID int64, req workflow.Request) (*workflow.TransitionResult, error)

	// NextStep reports the instance's workflow position and available actions
	NextStep(ctx context.Context, instanceID int64) (*workflow.StepInfo, error)

	// ListHistory returns the append-only audit trail for an instance
	ListHistory(ctx context.Context, instanceID int64) ([]*form.HistoryEntry, error)

	// ListByTemplate retrieves instances of a template with pagination
	ListByTemplate(ctx context.Context, templateID int64, limit, offset int) ([]*form.Instance, error)
}

type formServiceImpl struct {
	templates port.TemplateRepository
	instances port.InstanceRepository
	history   port.HistoryRepository
	txManager port.TransactionManager
	engine    *workflow.Engine
	bus       dispatcher.Dispatcher
	logger    Logger
}

// NewFormService creates a new FormService
func NewFormService(
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	engine *workflow.Engine,
	bus dispatcher.Dispatcher,
	logger Logger,
) FormService {
	return &formServiceImpl{
		templates: templates,
		instances: instances,
		history:   history,
		txManager: txManager,
		engine:    engine,
		bus:       bus,
		logger:    logger,
	}
}

// CreateInstance creates a draft instance against a published template
func (s *formServiceImpl) CreateInstance(ctx context.Context, tenantID string, templateID int64, createdBy string, data map[string]any) (*form.Instance, error) {
	tpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", templateID, err)
	}
	if !tpl.Published {
		return nil, fmt.Errorf("template %d is not published", templateID)
	}
	if tpl.TenantID != tenantID {
		return nil, fmt.Errorf("template %d does not belong to tenant %s", templateID, tenantID)
	}

	if data == nil {
		data = make(map[string]any)
	}

	now := time.Now()
	inst := &form.Instance{
		TenantID:   tenantID,
		TemplateID: templateID,
		CreatedBy:  createdBy,
		Status:     form.StatusDraft,
		Data:       data,
		State:      form.NewWorkflowState(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.instances.Create(ctx, inst); err != nil {
		s.logger.Error("Failed to create instance", "error", err, "template_id", templateID, "tenant_id", tenantID)
		return nil, fmt.Errorf("create instance: %w", err)
	}

	s.logger.Info("Instance created",
		"instance_id", inst.ID,
		"template_id", templateID,
		"tenant_id", tenantID,
		"created_by", createdBy,
	)

	evt := event.New(event.TypeInstanceCreated, tenantID, inst.ID, templateID, nil).WithActor(createdBy)
	s.bus.DispatchAsync(ctx, evt)

	return inst, nil
}

// GetInstance retrieves an instance by id
func (s *formServiceImpl) GetInstance(ctx context.Context, id int64) (*form.Instance, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get instance", "error", err, "instance_id", id)
		return nil, err
	}
	return inst, nil
}

// UpdateDraft replaces a draft instance's data
func (s *formServiceImpl) UpdateDraft(ctx context.Context, id int64, actorID string, data map[string]any) (*form.Instance, error) {
	var updated *form.Instance

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		inst, err := s.instances.GetForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("load instance %d: %w", id, err)
		}
		if inst.Status != form.StatusDraft {
			return fmt.Errorf("instance %d is %s, only drafts can be edited", id, inst.Status)
		}
		if inst.CreatedBy != actorID {
			return fmt.Errorf("only the creator may edit instance %d", id)
		}

		inst.Data = data
		inst.UpdatedAt = time.Now()

		if err := s.instances.Update(txCtx, inst); err != nil {
			return fmt.Errorf("update instance %d: %w", id, err)
		}
		updated = inst
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update draft", "error", err, "instance_id", id)
		return nil, err
	}

	return updated, nil
}

// Transition applies a workflow action to an instance. The engine computes
// the new state; this method owns persistence and event fan-out. The
// exclusive row claim taken by GetForUpdate serializes concurrent
// transitions on the same instance.
func (s *formServiceImpl) Transition(ctx context.Context, instanceID int64, req workflow.Request) (*workflow.TransitionResult, error) {
	var result *workflow.TransitionResult

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		inst, err := s.instances.GetForUpdate(txCtx, instanceID)
		if err != nil {
			return fmt.Errorf("load instance %d: %w", instanceID, err)
		}

		tpl, err := s.templates.GetByID(txCtx, inst.TemplateID)
		if err != nil {
			return fmt.Errorf("load template %d: %w", inst.TemplateID, err)
		}

		result = s.engine.Transition(txCtx, tpl, inst, req)
		if !result.Success {
			// Denied or invalid transitions roll back untouched
			return nil
		}

		if err := s.instances.Update(txCtx, inst); err != nil {
			return fmt.Errorf("persist instance %d: %w", instanceID, err)
		}
		if err := s.history.Append(txCtx, result.History); err != nil {
			return fmt.Errorf("append history for instance %d: %w", instanceID, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Workflow transition failed",
			"error", err,
			"instance_id", instanceID,
			"action", req.Action,
		)
		return nil, err
	}

	// Events fire only after the transition is durable
	if result.Success {
		for _, evt := range result.Events {
			s.bus.DispatchAsync(ctx, evt)
		}
	}

	return result, nil
}

// NextStep reports the instance's workflow position and available actions
func (s *formServiceImpl) NextStep(ctx context.Context, instanceID int64) (*workflow.StepInfo, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load instance %d: %w", instanceID, err)
	}
	tpl, err := s.templates.GetByID(ctx, inst.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template %d: %w", inst.TemplateID, err)
	}
	return s.engine.NextStep(tpl, inst), nil
}

// ListHistory returns the append-only audit trail for an instance
func (s *formServiceImpl) ListHistory(ctx context.Context, instanceID int64) ([]*form.HistoryEntry, error) {
	entries, err := s.history.ListByInstance(ctx, instanceID)
	if err != nil {
		s.logger.Error("Failed to list history", "error", err, "instance_id", instanceID)
		return nil, err
	}
	return entries, nil
}

// ListByTemplate retrieves instances of a template with pagination
func (s *formServiceImpl) ListByTemplate(ctx context.Context, templateID int64, limit, offset int) ([]*form.Instance, error) {
	instances, err := s.instances.ListByTemplate(ctx, templateID, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list instances", "error", err, "template_id", templateID)
		return nil, err
	}
	return instances, nil
}
