package service

import (
	"context"
	"fmt"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/workflow"
)

// EscalationService scans open instances for SLA breaches. Scanning reads
// state and notifies the escalation targets; it never transitions an
// instance, that requires an explicit escalate action by an approver.
type EscalationService interface {
	// Scan checks every open instance in a tenant against its step SLA and
	// the template's escalation rules
	Scan(ctx context.Context, tenantID string) ([]workflow.EscalationCandidate, error)

	// NotifyCandidates sends a best-effort notification to each candidate's
	// target role and returns the number delivered
	NotifyCandidates(ctx context.Context, tenantID string, candidates []workflow.EscalationCandidate) int
}

type escalationServiceImpl struct {
	templates port.TemplateRepository
	instances port.InstanceRepository
	users     port.UserDirectory
	notifier  port.Notifier
	engine    *workflow.Engine
	scanLimit int
	logger    Logger
}

// NewEscalationService creates a new EscalationService
func NewEscalationService(
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	users port.UserDirectory,
	notifier port.Notifier,
	engine *workflow.Engine,
	scanLimit int,
	logger Logger,
) EscalationService {
	if scanLimit <= 0 {
		scanLimit = 500
	}
	return &escalationServiceImpl{
		templates: templates,
		instances: instances,
		users:     users,
		notifier:  notifier,
		engine:    engine,
		scanLimit: scanLimit,
		logger:    logger,
	}
}

// Scan checks every open instance in a tenant for SLA breaches
func (s *escalationServiceImpl) Scan(ctx context.Context, tenantID string) ([]workflow.EscalationCandidate, error) {
	open, err := s.instances.ListOpen(ctx, tenantID, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("list open instances: %w", err)
	}

	now := time.Now()
	templates := make(map[int64]*template.Template)
	var candidates []workflow.EscalationCandidate

	for _, inst := range open {
		tpl, ok := templates[inst.TemplateID]
		if !ok {
			tpl, err = s.templates.GetByID(ctx, inst.TemplateID)
			if err != nil {
				s.logger.Error("Failed to load template during escalation scan",
					"error", err,
					"template_id", inst.TemplateID,
					"instance_id", inst.ID,
				)
				continue
			}
			templates[inst.TemplateID] = tpl
		}

		candidates = append(candidates, s.engine.CheckEscalation(tpl, inst, now)...)
	}

	s.logger.Info("Escalation scan finished",
		"tenant_id", tenantID,
		"open_instances", len(open),
		"breaches", len(candidates),
	)
	return candidates, nil
}

// NotifyCandidates sends a best-effort notification per breach to the users
// holding the target role
func (s *escalationServiceImpl) NotifyCandidates(ctx context.Context, tenantID string, candidates []workflow.EscalationCandidate) int {
	delivered := 0
	for _, c := range candidates {
		if c.TargetRole == "" {
			continue
		}

		users, err := s.users.UsersWithRole(ctx, tenantID, c.TargetRole)
		if err != nil {
			s.logger.Error("Failed to resolve escalation target role",
				"error", err,
				"role", c.TargetRole,
				"instance_id", c.InstanceID,
			)
			continue
		}

		for _, u := range users {
			if u.Email == "" {
				continue
			}
			msg := port.Message{
				TenantID:  tenantID,
				Recipient: u.Email,
				Subject:   fmt.Sprintf("SLA breach on form %d", c.InstanceID),
				Body: fmt.Sprintf(
					"Form %d has been waiting at step %q for %.0f hours (limit %.0f hours).",
					c.InstanceID, c.Step, c.HoursInStep, c.ThresholdHours,
				),
			}
			if err := s.notifier.Send(ctx, msg); err != nil {
				s.logger.Warn("Escalation notification failed",
					"recipient", u.Email,
					"instance_id", c.InstanceID,
					"error", err,
				)
				continue
			}
			delivered++
		}
	}
	return delivered
}
