package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/domain/lifecycle"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/eval"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Action is a workflow transition requested by an actor
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionRequestChanges Action = "request_changes"
	ActionEscalate       Action = "escalate"
)

// IsValid returns true if the action is one of the defined constants
func (a Action) IsValid() bool {
	switch a {
	case ActionSubmit, ActionApprove, ActionReject, ActionRequestChanges, ActionEscalate:
		return true
	default:
		return false
	}
}

// Actor is the user requesting a transition, with the roles they hold in the
// instance's tenant. Identity and roles are explicit parameters: the engine
// has no ambient session state.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole returns true if the actor holds the given role
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Request describes one requested transition
type Request struct {
	Action Action
	Actor  Actor
	// Notes carries approval notes, the rejection reason, or the requested
	// changes depending on the action
	Notes string
	// TargetRole overrides the current step's configured escalation target
	TargetRole string
}

// TransitionResult reports the outcome of a transition attempt. When Success
// is false the instance was not mutated.
type TransitionResult struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	NewStep    string              `json:"new_step,omitempty"`
	FormStatus form.Status         `json:"form_status"`
	Errors     []ValidationError   `json:"errors,omitempty"`
	Warnings   []ValidationError   `json:"warnings,omitempty"`
	// History is the single audit record the caller must append; exactly one
	// per successful transition
	History *form.HistoryEntry `json:"-"`
	// Events are the lifecycle events to raise once the transition is
	// persisted
	Events []*event.Event `json:"-"`
}

// StepInfo describes where an instance sits in its workflow
type StepInfo struct {
	CurrentStep      string   `json:"current_step"`
	NextStep         string   `json:"next_step,omitempty"`
	AvailableActions []Action `json:"available_actions"`
	CanProceed       bool     `json:"can_proceed"`
}

// EscalationCandidate is an instance step that has exceeded its SLA. It is a
// read-path result only: producing a candidate does not transition anything.
type EscalationCandidate struct {
	InstanceID     int64   `json:"instance_id"`
	Step           string  `json:"step"`
	TargetRole     string  `json:"target_role"`
	HoursInStep    float64 `json:"hours_in_step"`
	ThresholdHours float64 `json:"threshold_hours"`
}

// Engine owns the per-instance workflow state transition logic. It computes
// the next state; it never persists anything itself.
type Engine struct {
	logger Logger
}

// NewEngine creates a workflow engine
func NewEngine(logger Logger) *Engine {
	return &Engine{logger: logger}
}

// Transition applies one workflow action to an instance. The caller must
// wrap the surrounding read-modify-write in a transaction holding an
// exclusive claim on the instance row.
func (e *Engine) Transition(ctx context.Context, tpl *template.Template, inst *form.Instance, req Request) *TransitionResult {
	fail := func(msg string) *TransitionResult {
		return &TransitionResult{
			Success:    false,
			Message:    msg,
			NewStep:    inst.State.CurrentStep,
			FormStatus: inst.Status,
		}
	}

	if !req.Action.IsValid() {
		return fail(fmt.Sprintf("unknown action %q", req.Action))
	}

	// A status outside the lifecycle means a corrupted row; refuse rather
	// than let the state machine panic on it
	if !inst.Status.IsValid() {
		return fail(fmt.Sprintf("instance has unknown status %q", inst.Status))
	}

	if inst.Status.IsTerminal() {
		return fail(fmt.Sprintf("no transitions are defined out of terminal status %q", inst.Status))
	}

	if msg := e.authorize(tpl, inst, req); msg != "" {
		e.logger.Info("Transition denied",
			"instance_id", inst.ID,
			"action", req.Action,
			"actor", req.Actor.ID,
			"reason", msg,
		)
		return fail(msg)
	}

	switch req.Action {
	case ActionSubmit:
		return e.submit(ctx, tpl, inst, req)
	case ActionApprove:
		return e.approve(ctx, tpl, inst, req)
	case ActionReject:
		return e.reject(ctx, tpl, inst, req)
	case ActionRequestChanges:
		return e.requestChanges(ctx, tpl, inst, req)
	case ActionEscalate:
		return e.escalate(ctx, tpl, inst, req)
	}

	return fail(fmt.Sprintf("unknown action %q", req.Action))
}

// authorize checks the actor against the action before any mutation. The
// submitter may submit; approval actions require the current step's approver
// role and a passing gating condition.
func (e *Engine) authorize(tpl *template.Template, inst *form.Instance, req Request) string {
	if req.Action == ActionSubmit {
		if req.Actor.ID != inst.CreatedBy {
			return "only the form creator may submit"
		}
		return ""
	}

	step := tpl.Workflow.StepByName(inst.State.CurrentStep)
	if step == nil {
		return fmt.Sprintf("instance is not at a reviewable workflow step (current: %q)", inst.State.CurrentStep)
	}

	// An escalation authorizes its target role for the step it was raised
	// on, alongside the configured approver role
	if !req.Actor.HasRole(step.ApproverRole) {
		escalated := escalatedRoleFor(inst, step.Name)
		if escalated == "" || !req.Actor.HasRole(escalated) {
			return fmt.Sprintf("actor does not hold approver role %q for step %q", step.ApproverRole, step.Name)
		}
	}

	if step.Condition != "" && !eval.EvaluateBool(step.Condition, inst.Data) {
		return fmt.Sprintf("gating condition on step %q does not hold for this instance", step.Name)
	}

	return ""
}

// submit validates the instance and advances it to the first qualifying
// workflow step. With no qualifying step the workflow completes immediately
// as approved: a methodology with no applicable approval gates must not
// block the submitter.
func (e *Engine) submit(ctx context.Context, tpl *template.Template, inst *form.Instance, req Request) *TransitionResult {
	errs, warns := e.Validate(tpl, inst.Data)
	if len(errs) > 0 {
		return &TransitionResult{
			Success:    false,
			Message:    "form validation failed",
			NewStep:    inst.State.CurrentStep,
			FormStatus: inst.Status,
			Errors:     errs,
			Warnings:   warns,
		}
	}

	machine := lifecycle.MachineAt(inst.Status)
	if err := machine.Fire(ctx, lifecycle.TriggerSubmit); err != nil {
		return &TransitionResult{
			Success: false, Message: err.Error(),
			NewStep: inst.State.CurrentStep, FormStatus: inst.Status,
		}
	}

	now := time.Now()
	prevStatus := inst.Status
	inst.SubmittedAt = &now

	next := e.firstQualifyingStep(tpl, inst.Data, "")
	var events []*event.Event
	events = append(events, e.newEvent(event.TypeFormSubmitted, tpl, inst, req.Actor.ID, nil))

	if next == nil {
		if err := machine.Fire(ctx, lifecycle.TriggerAutoApprove); err != nil {
			return &TransitionResult{
				Success: false, Message: err.Error(),
				NewStep: inst.State.CurrentStep, FormStatus: inst.Status,
			}
		}
		inst.Status = form.Status(machine.State())
		inst.State.CurrentStep = form.StepCompleted
		inst.State.AutoApproved = true
		inst.State.CompletedAt = &now
		events = append(events, e.newEvent(event.TypeFormApproved, tpl, inst, req.Actor.ID, map[string]any{"auto_approved": true}))
	} else {
		if err := machine.Fire(ctx, lifecycle.TriggerStartReview); err != nil {
			return &TransitionResult{
				Success: false, Message: err.Error(),
				NewStep: inst.State.CurrentStep, FormStatus: inst.Status,
			}
		}
		inst.Status = form.Status(machine.State())
		inst.State.CurrentStep = next.Name
	}

	events = append(events, e.statusChanged(tpl, inst, req.Actor.ID, prevStatus))

	return e.success(tpl, inst, req, prevStatus, "form submitted", warns, events, now)
}

// approve records completion of the current step and advances to the next
// qualifying one; absence of a further qualifying step completes the
// workflow as approved
func (e *Engine) approve(ctx context.Context, tpl *template.Template, inst *form.Instance, req Request) *TransitionResult {
	now := time.Now()
	prevStatus := inst.Status
	current := inst.State.CurrentStep

	inst.State.StepsCompleted = append(inst.State.StepsCompleted, form.StepRecord{
		Step:      current,
		Action:    string(ActionApprove),
		Actor:     req.Actor.ID,
		Timestamp: now,
		Notes:     req.Notes,
	})

	var events []*event.Event
	events = append(events, e.newEvent(event.TypeWorkflowStepCompleted, tpl, inst, req.Actor.ID, map[string]any{
		"step":   current,
		"action": string(ActionApprove),
	}))

	next := e.firstQualifyingStep(tpl, inst.Data, current)
	if next == nil {
		machine := lifecycle.MachineAt(inst.Status)
		if err := machine.Fire(ctx, lifecycle.TriggerApprove); err != nil {
			return &TransitionResult{
				Success: false, Message: err.Error(),
				NewStep: current, FormStatus: inst.Status,
			}
		}
		inst.Status = form.Status(machine.State())
		inst.State.CurrentStep = form.StepCompleted
		inst.State.CompletedAt = &now
		events = append(events,
			e.newEvent(event.TypeFormApproved, tpl, inst, req.Actor.ID, nil),
			e.statusChanged(tpl, inst, req.Actor.ID, prevStatus),
		)
		return e.success(tpl, inst, req, prevStatus, "workflow completed, form approved", nil, events, now)
	}

	inst.State.CurrentStep = next.Name
	return e.success(tpl, inst, req, prevStatus, fmt.Sprintf("step %q approved, now at %q", current, next.Name), nil, events, now)
}

// reject moves the instance to the terminal rejected state
func (e *Engine) reject(ctx context.Context, tpl *template.Template, inst *form.Instance, req Request) *TransitionResult {
	machine := lifecycle.MachineAt(inst.Status)
	if err := machine.Fire(ctx, lifecycle.TriggerReject); err != nil {
		return &TransitionResult{
			Success: false, Message: err.Error(),
			NewStep: inst.State.CurrentStep, FormStatus: inst.Status,
		}
	}

	now := time.Now()
	prevStatus := inst.Status
	current := inst.State.CurrentStep

	inst.State.StepsCompleted = append(inst.State.StepsCompleted, form.StepRecord{
		Step:      current,
		Action:    string(ActionReject),
		Actor:     req.Actor.ID,
		Timestamp: now,
		Notes:     req.Notes,
	})
	inst.Status = form.Status(machine.State())
	inst.State.CurrentStep = form.StepRejected

	events := []*event.Event{
		e.newEvent(event.TypeFormRejected, tpl, inst, req.Actor.ID, map[string]any{"reason": req.Notes}),
		e.statusChanged(tpl, inst, req.Actor.ID, prevStatus),
	}
	return e.success(tpl, inst, req, prevStatus, "form rejected", nil, events, now)
}

// requestChanges returns the instance to draft; re-submission restarts step
// selection since the data, and therefore the gating conditions, may change
func (e *Engine) requestChanges(ctx context.Context, tpl *template.Template, inst *form.Instance, req Request) *TransitionResult {
	machine := lifecycle.MachineAt(inst.Status)
	if err := machine.Fire(ctx, lifecycle.TriggerRequestChanges); err != nil {
		return &TransitionResult{
			Success: false, Message: err.Error(),
			NewStep: inst.State.CurrentStep, FormStatus: inst.Status,
		}
	}

	now := time.Now()
	prevStatus := inst.Status

	inst.State.StepsCompleted = append(inst.State.StepsCompleted, form.StepRecord{
		Step:      inst.State.CurrentStep,
		Action:    string(ActionRequestChanges),
		Actor:     req.Actor.ID,
		Timestamp: now,
		Notes:     req.Notes,
	})
	inst.Status = form.Status(machine.State())
	inst.State.CurrentStep = form.StepDraft

	events := []*event.Event{
		e.newEvent(event.TypeChangesRequested, tpl, inst, req.Actor.ID, map[string]any{"changes": req.Notes}),
		e.statusChanged(tpl, inst, req.Actor.ID, prevStatus),
	}
	return e.success(tpl, inst, req, prevStatus, "changes requested, form returned to draft", nil, events, now)
}

// escalate hands the instance to the escalation target configured on the
// current step (or the caller-supplied override) without normal advancement
func (e *Engine) escalate(ctx context.Context, tpl *template.Template, inst *form.Instance, req Request) *TransitionResult {
	target := req.TargetRole
	if target == "" {
		if step := tpl.Workflow.StepByName(inst.State.CurrentStep); step != nil {
			target = step.EscalateTo
		}
	}
	if target == "" {
		return &TransitionResult{
			Success: false, Message: "no escalation target configured for the current step",
			NewStep: inst.State.CurrentStep, FormStatus: inst.Status,
		}
	}

	now := time.Now()
	prevStatus := inst.Status
	reason := req.Notes
	if reason == "" {
		reason = "escalated"
	}

	inst.State.Escalations = append(inst.State.Escalations, form.EscalationRecord{
		Step:       inst.State.CurrentStep,
		TargetRole: target,
		Reason:     reason,
		Timestamp:  now,
	})

	// When the target names a configured workflow step the instance moves
	// there; otherwise it stays on its step and the target role is
	// authorized for it through the escalation record. current_step is
	// always draft, a configured step name, or a terminal marker.
	if step := tpl.Workflow.StepByName(target); step != nil {
		inst.State.CurrentStep = step.Name
	}

	events := []*event.Event{
		e.newEvent(event.TypeEscalationTriggered, tpl, inst, req.Actor.ID, map[string]any{
			"target_role": target,
			"reason":      reason,
		}),
	}
	return e.success(tpl, inst, req, prevStatus, fmt.Sprintf("escalated to %q", target), nil, events, now)
}

// NextStep reports where the instance sits and which actions apply
func (e *Engine) NextStep(tpl *template.Template, inst *form.Instance) *StepInfo {
	info := &StepInfo{CurrentStep: inst.State.CurrentStep}

	if inst.Status.IsTerminal() {
		return info
	}

	switch inst.Status {
	case form.StatusDraft:
		info.AvailableActions = []Action{ActionSubmit}
		if next := e.firstQualifyingStep(tpl, inst.Data, ""); next != nil {
			info.NextStep = next.Name
		}
		errs, _ := e.Validate(tpl, inst.Data)
		info.CanProceed = len(errs) == 0
	case form.StatusSubmitted, form.StatusUnderReview:
		info.AvailableActions = []Action{ActionApprove, ActionReject, ActionRequestChanges, ActionEscalate}
		if next := e.firstQualifyingStep(tpl, inst.Data, inst.State.CurrentStep); next != nil {
			info.NextStep = next.Name
		}
		info.CanProceed = true
	case form.StatusApproved:
		info.CanProceed = true
	}

	return info
}

// CheckEscalation reports SLA breaches on the instance's current step. It is
// a read path: actual escalation requires an explicit escalate transition.
func (e *Engine) CheckEscalation(tpl *template.Template, inst *form.Instance, now time.Time) []EscalationCandidate {
	if inst.Status != form.StatusUnderReview {
		return nil
	}

	step := tpl.Workflow.StepByName(inst.State.CurrentStep)
	if step == nil {
		return nil
	}

	enteredAt := e.stepEnteredAt(inst)
	hoursInStep := now.Sub(enteredAt).Hours()

	var candidates []EscalationCandidate

	if step.SLADays > 0 {
		threshold := float64(step.SLADays) * 24
		if hoursInStep >= threshold {
			candidates = append(candidates, EscalationCandidate{
				InstanceID:     inst.ID,
				Step:           step.Name,
				TargetRole:     step.EscalateTo,
				HoursInStep:    hoursInStep,
				ThresholdHours: threshold,
			})
		}
	}

	for _, rule := range tpl.EscalationRules {
		if rule.Trigger != "sla_breach" || rule.ThresholdHours <= 0 {
			continue
		}
		if hoursInStep >= float64(rule.ThresholdHours) {
			candidates = append(candidates, EscalationCandidate{
				InstanceID:     inst.ID,
				Step:           step.Name,
				TargetRole:     rule.EscalateTo,
				HoursInStep:    hoursInStep,
				ThresholdHours: float64(rule.ThresholdHours),
			})
		}
	}

	return candidates
}

// firstQualifyingStep returns the first workflow step, in configured order
// and strictly after the named step, whose gating condition holds for the
// data. An empty condition always qualifies.
func (e *Engine) firstQualifyingStep(tpl *template.Template, data map[string]any, after string) *template.WorkflowStep {
	passed := after == ""
	for i := range tpl.Workflow.Steps {
		step := &tpl.Workflow.Steps[i]
		if !passed {
			if step.Name == after {
				passed = true
			}
			continue
		}
		if step.Condition == "" || eval.EvaluateBool(step.Condition, data) {
			return step
		}
	}
	return nil
}

// stepEnteredAt estimates when the instance entered its current step
func (e *Engine) stepEnteredAt(inst *form.Instance) time.Time {
	if n := len(inst.State.StepsCompleted); n > 0 {
		return inst.State.StepsCompleted[n-1].Timestamp
	}
	if inst.SubmittedAt != nil {
		return *inst.SubmittedAt
	}
	return inst.UpdatedAt
}

// success assembles the result with its single audit record
func (e *Engine) success(tpl *template.Template, inst *form.Instance, req Request, prevStatus form.Status, msg string, warns []ValidationError, events []*event.Event, now time.Time) *TransitionResult {
	history := &form.HistoryEntry{
		InstanceID:     inst.ID,
		Actor:          req.Actor.ID,
		Action:         string(req.Action),
		PreviousStatus: prevStatus,
		NewStatus:      inst.Status,
		ResultingStep:  inst.State.CurrentStep,
		Notes:          req.Notes,
		Timestamp:      now,
	}

	inst.UpdatedAt = now

	e.logger.Info("Workflow transition applied",
		"instance_id", inst.ID,
		"action", req.Action,
		"actor", req.Actor.ID,
		"new_status", inst.Status,
		"new_step", inst.State.CurrentStep,
	)

	return &TransitionResult{
		Success:    true,
		Message:    msg,
		NewStep:    inst.State.CurrentStep,
		FormStatus: inst.Status,
		Warnings:   warns,
		History:    history,
		Events:     events,
	}
}

// newEvent builds a lifecycle event for this instance
func (e *Engine) newEvent(t event.Type, tpl *template.Template, inst *form.Instance, actor string, payload map[string]any) *event.Event {
	return event.New(t, inst.TenantID, inst.ID, tpl.ID, payload).WithActor(actor)
}

// statusChanged builds the status_changed event
func (e *Engine) statusChanged(tpl *template.Template, inst *form.Instance, actor string, prev form.Status) *event.Event {
	return e.newEvent(event.TypeStatusChanged, tpl, inst, actor, map[string]any{
		"previous_status": string(prev),
		"new_status":      string(inst.Status),
	})
}

// escalatedRoleFor returns the target role of the most recent escalation
// raised on the named step, or ""
func escalatedRoleFor(inst *form.Instance, step string) string {
	for i := len(inst.State.Escalations) - 1; i >= 0; i-- {
		if inst.State.Escalations[i].Step == step {
			return inst.State.Escalations[i].TargetRole
		}
	}
	return ""
}
