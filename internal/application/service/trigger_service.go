package service

import (
	"context"
	"fmt"

	"github.com/formdesk/flowengine/internal/application/dispatcher"
	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/engine/trigger"
)

// TriggerService runs configured template triggers in response to lifecycle
// events. It owns the load-dispatch-persist cycle around the trigger engine,
// which itself only mutates the instance in memory.
type TriggerService interface {
	// HandleEvent evaluates and executes the triggers registered for the
	// event on the instance's template
	HandleEvent(ctx context.Context, evt *event.Event) error

	// RegisterAll subscribes the service to every lifecycle event type
	RegisterAll(bus dispatcher.Dispatcher)
}

type triggerServiceImpl struct {
	templates  port.TemplateRepository
	instances  port.InstanceRepository
	txManager  port.TransactionManager
	dispatcher *trigger.Dispatcher
	logger     Logger
}

// NewTriggerService creates a new TriggerService
func NewTriggerService(
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	txManager port.TransactionManager,
	d *trigger.Dispatcher,
	logger Logger,
) TriggerService {
	return &triggerServiceImpl{
		templates:  templates,
		instances:  instances,
		txManager:  txManager,
		dispatcher: d,
		logger:     logger,
	}
}

// HandleEvent evaluates and executes matching triggers for one event
func (s *triggerServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		inst, err := s.instances.GetForUpdate(txCtx, evt.InstanceID)
		if err != nil {
			return fmt.Errorf("load instance %d: %w", evt.InstanceID, err)
		}

		tpl, err := s.templates.GetByID(txCtx, inst.TemplateID)
		if err != nil {
			return fmt.Errorf("load template %d: %w", inst.TemplateID, err)
		}

		if len(tpl.ActiveTriggersFor(evt.Type.String())) == 0 {
			return nil
		}

		result := s.dispatcher.Dispatch(txCtx, tpl, inst, evt.Type, trigger.Context{
			FormData: inst.Data,
			Actor:    evt.Actor,
			Extra:    evt.Payload,
		})

		// Some trigger actions (auto_approve, escalate_approval,
		// update_status) mutate the instance; persist whatever ran
		if result.Executed > 0 {
			if err := s.instances.Update(txCtx, inst); err != nil {
				return fmt.Errorf("persist instance %d after triggers: %w", inst.ID, err)
			}
		}

		s.logger.Info("Triggers handled",
			"event_type", evt.Type,
			"instance_id", inst.ID,
			"executed", result.Executed,
			"total", result.Total,
		)
		return nil
	})
	if err != nil {
		s.logger.Error("Trigger handling failed",
			"error", err,
			"event_type", evt.Type,
			"instance_id", evt.InstanceID,
		)
		return err
	}
	return nil
}

// RegisterAll subscribes the service to every lifecycle event type
func (s *triggerServiceImpl) RegisterAll(bus dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeInstanceCreated,
		event.TypeFormSubmitted,
		event.TypeFormApproved,
		event.TypeFormRejected,
		event.TypeChangesRequested,
		event.TypeWorkflowStepCompleted,
		event.TypeEscalationTriggered,
		event.TypeStatusChanged,
	} {
		bus.SubscribeNamed(t, fmt.Sprintf("triggers-%s", t), s.HandleEvent)
	}
}
