package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/eval"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Context carries the data a dispatch evaluates conditions and actions against
type Context struct {
	FormData map[string]any
	Actor    string
	Extra    map[string]any
}

// Result is the outcome of one trigger within a dispatch
type Result struct {
	TriggerID        string              `json:"trigger_id"`
	Action           template.ActionKind `json:"action"`
	Executed         bool                `json:"executed"`
	Skipped          bool                `json:"skipped,omitempty"`
	Error            string              `json:"error,omitempty"`
	Recipients       int                 `json:"recipients,omitempty"`
	Delivered        int                 `json:"delivered,omitempty"`
	FailedRecipients []string            `json:"failed_recipients,omitempty"`
}

// DispatchResult aggregates the outcome of one dispatch invocation
type DispatchResult struct {
	Event    event.Type `json:"event"`
	Executed int        `json:"executed"`
	Total    int        `json:"total"`
	Results  []Result   `json:"results"`
}

// Dispatcher finds the triggers on an instance's template that match a
// lifecycle event, evaluates their conditions, and executes matched actions.
// Failures are isolated per trigger: one trigger's error never aborts its
// siblings (fire-and-report, not fire-and-abort).
type Dispatcher struct {
	users    port.UserDirectory
	notifier port.Notifier
	webhooks port.WebhookSender
	logger   Logger
}

// NewDispatcher creates a trigger dispatcher
func NewDispatcher(users port.UserDirectory, notifier port.Notifier, webhooks port.WebhookSender, logger Logger) *Dispatcher {
	return &Dispatcher{
		users:    users,
		notifier: notifier,
		webhooks: webhooks,
		logger:   logger,
	}
}

// Dispatch runs every active trigger registered for the event. Conditions
// use AND semantics; a trigger with zero conditions always fires. Each
// trigger id fires at most once per dispatch: duplicate ids are a
// configuration mistake and are skipped with a warning.
func (d *Dispatcher) Dispatch(ctx context.Context, tpl *template.Template, inst *form.Instance, evt event.Type, tctx Context) *DispatchResult {
	matching := tpl.ActiveTriggersFor(evt.String())

	result := &DispatchResult{
		Event:   evt,
		Total:   len(matching),
		Results: make([]Result, 0, len(matching)),
	}

	seen := make(map[string]bool, len(matching))
	for _, tr := range matching {
		if seen[tr.ID] {
			d.logger.Warn("Duplicate trigger id in template, firing first definition only",
				"trigger_id", tr.ID,
				"template_id", tpl.ID,
				"event", evt,
			)
			result.Results = append(result.Results, Result{TriggerID: tr.ID, Action: tr.Action, Skipped: true})
			continue
		}
		seen[tr.ID] = true

		if !d.conditionsMet(tr, tctx.FormData) {
			result.Results = append(result.Results, Result{TriggerID: tr.ID, Action: tr.Action, Skipped: true})
			continue
		}

		res := d.execute(ctx, tr, tpl, inst, evt, tctx)
		if res.Executed {
			result.Executed++
		}
		result.Results = append(result.Results, res)
	}

	d.logger.Info("Trigger dispatch finished",
		"event", evt,
		"instance_id", inst.ID,
		"executed", result.Executed,
		"total", result.Total,
	)

	return result
}

// conditionsMet evaluates all trigger conditions with AND semantics
func (d *Dispatcher) conditionsMet(tr template.Trigger, data map[string]any) bool {
	for _, cond := range tr.Conditions {
		if !eval.EvaluateBool(cond, data) {
			return false
		}
	}
	return true
}

// execute runs a single trigger action with panic recovery, so a broken
// action configuration cannot take down the dispatch
func (d *Dispatcher) execute(ctx context.Context, tr template.Trigger, tpl *template.Template, inst *form.Instance, evt event.Type, tctx Context) (res Result) {
	res = Result{TriggerID: tr.ID, Action: tr.Action}

	defer func() {
		if r := recover(); r != nil {
			res.Executed = false
			res.Error = fmt.Sprintf("trigger action panic: %v", r)
			d.logger.Error("Trigger action panic recovered",
				"trigger_id", tr.ID,
				"action", tr.Action,
				"instance_id", inst.ID,
				"panic", r,
			)
		}
	}()

	switch tr.Action {
	case template.ActionNotify:
		d.executeNotify(ctx, tr, tpl, inst, evt, &res)
	case template.ActionWebhookCall:
		d.executeWebhook(ctx, tr, tpl, inst, evt, &res)
	case template.ActionEscalateApproval:
		d.executeEscalate(tr, inst, tctx, &res)
	case template.ActionAutoApprove:
		d.executeAutoApprove(tr, inst, &res)
	case template.ActionUpdateStatus:
		d.executeUpdateStatus(tr, inst, &res)
	default:
		res.Error = fmt.Sprintf("unknown action kind %q", tr.Action)
		d.logger.Warn("Trigger configured with unknown action kind",
			"trigger_id", tr.ID,
			"action", tr.Action,
			"template_id", tpl.ID,
		)
	}

	if res.Error != "" && !res.Executed {
		d.logger.Error("Trigger action failed",
			"trigger_id", tr.ID,
			"action", tr.Action,
			"instance_id", inst.ID,
			"error", res.Error,
		)
	}

	return res
}

// executeNotify resolves the audience to recipients and sends one message
// per recipient. Partial delivery still counts as executed when at least one
// recipient succeeded: the intent "a best-effort notification went out" was
// substantially met.
func (d *Dispatcher) executeNotify(ctx context.Context, tr template.Trigger, tpl *template.Template, inst *form.Instance, evt event.Type, res *Result) {
	recipients, err := d.resolveRecipients(ctx, tr, tpl, inst)
	if err != nil {
		res.Error = err.Error()
		return
	}
	if len(recipients) == 0 {
		res.Error = "no recipients resolved for notify trigger"
		return
	}

	res.Recipients = len(recipients)

	subject := paramString(tr.Params, "subject")
	if subject == "" {
		subject = fmt.Sprintf("Form %d: %s", inst.ID, evt)
	}
	body := paramString(tr.Params, "body")

	for _, rcpt := range recipients {
		msg := port.Message{
			TenantID:  inst.TenantID,
			Recipient: rcpt,
			Subject:   subject,
			Body:      body,
		}
		if err := d.notifier.Send(ctx, msg); err != nil {
			res.FailedRecipients = append(res.FailedRecipients, rcpt)
			d.logger.Warn("Notification delivery failed for recipient",
				"trigger_id", tr.ID,
				"recipient", rcpt,
				"error", err,
			)
			continue
		}
		res.Delivered++
	}

	res.Executed = res.Delivered > 0
	if !res.Executed {
		res.Error = "all recipients failed"
	}
}

// resolveRecipients turns the trigger's audience configuration into a list
// of concrete recipients
func (d *Dispatcher) resolveRecipients(ctx context.Context, tr template.Trigger, tpl *template.Template, inst *form.Instance) ([]string, error) {
	// Literal addresses take precedence when configured
	if raw, ok := tr.Params["recipients"]; ok {
		if list, ok := raw.([]any); ok {
			var out []string
			for _, v := range list {
				if s, ok := v.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			return out, nil
		}
		if list, ok := raw.([]string); ok {
			return list, nil
		}
	}

	audience := paramString(tr.Params, "audience")
	switch audience {
	case "", "form_creator":
		user, err := d.users.GetUser(ctx, inst.TenantID, inst.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("resolve form creator: %w", err)
		}
		return []string{user.Email}, nil

	case "form_approver":
		step := tpl.Workflow.StepByName(inst.State.CurrentStep)
		if step == nil {
			return nil, fmt.Errorf("no workflow step %q to resolve approvers from", inst.State.CurrentStep)
		}
		return d.roleEmails(ctx, inst.TenantID, step.ApproverRole)

	default:
		// Any other audience value is a tenant role name
		return d.roleEmails(ctx, inst.TenantID, audience)
	}
}

func (d *Dispatcher) roleEmails(ctx context.Context, tenantID, role string) ([]string, error) {
	users, err := d.users.UsersWithRole(ctx, tenantID, role)
	if err != nil {
		return nil, fmt.Errorf("resolve role %q: %w", role, err)
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			out = append(out, u.Email)
		}
	}
	return out, nil
}

// executeWebhook performs the outbound call with the fixed envelope. A
// non-2xx response surfaces as a failed trigger result; sibling triggers
// still run.
func (d *Dispatcher) executeWebhook(ctx context.Context, tr template.Trigger, tpl *template.Template, inst *form.Instance, evt event.Type, res *Result) {
	url := paramString(tr.Params, "url")
	if url == "" {
		res.Error = "webhook trigger has no url configured"
		return
	}

	var payload map[string]any
	if raw, ok := tr.Params["payload"].(map[string]any); ok {
		payload = raw
	}

	envelope := port.WebhookEnvelope{
		Event:      evt.String(),
		InstanceID: inst.ID,
		TemplateID: tpl.ID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}

	if err := d.webhooks.Call(ctx, url, envelope); err != nil {
		res.Error = err.Error()
		return
	}
	res.Executed = true
}

// executeEscalate records an escalation on the workflow state without
// touching current_step; moving the step is the state machine's job
func (d *Dispatcher) executeEscalate(tr template.Trigger, inst *form.Instance, tctx Context, res *Result) {
	target := paramString(tr.Params, "escalate_to")
	if target == "" {
		res.Error = "escalate trigger has no escalate_to configured"
		return
	}

	reason := paramString(tr.Params, "reason")
	if reason == "" {
		reason = fmt.Sprintf("escalated by trigger %s", tr.ID)
	}

	inst.State.Escalations = append(inst.State.Escalations, form.EscalationRecord{
		Step:       inst.State.CurrentStep,
		TargetRole: target,
		Reason:     reason,
		Timestamp:  time.Now(),
	})
	res.Executed = true
}

// executeAutoApprove approves the instance and stamps the workflow state
// with the auto-approval marker and level
func (d *Dispatcher) executeAutoApprove(tr template.Trigger, inst *form.Instance, res *Result) {
	now := time.Now()
	inst.Status = form.StatusApproved
	inst.State.CurrentStep = form.StepCompleted
	inst.State.AutoApproved = true
	inst.State.AutoApproveLevel = paramString(tr.Params, "level")
	inst.State.CompletedAt = &now
	res.Executed = true
}

// executeUpdateStatus sets the configured status and stamps the reason
func (d *Dispatcher) executeUpdateStatus(tr template.Trigger, inst *form.Instance, res *Result) {
	status := form.Status(paramString(tr.Params, "status"))
	if !status.IsValid() {
		res.Error = fmt.Sprintf("update_status trigger has invalid status %q", status)
		return
	}

	inst.Status = status
	inst.State.LastStatusReason = paramString(tr.Params, "reason")
	res.Executed = true
}

// paramString reads a string parameter from trigger params
func paramString(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}
