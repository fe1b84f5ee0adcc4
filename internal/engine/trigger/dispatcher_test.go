package trigger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/domain/template"
)

// testLogger implements Logger for testing
type testLogger struct {
	warns  []string
	errors []string
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {}
func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.warns = append(l.warns, msg)
}
func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.errors = append(l.errors, msg)
}

// mockDirectory implements port.UserDirectory
type mockDirectory struct {
	usersByRole map[string][]port.User
	users       map[string]port.User
}

func (m *mockDirectory) UsersWithRole(ctx context.Context, tenantID, role string) ([]port.User, error) {
	return m.usersByRole[role], nil
}

func (m *mockDirectory) GetUser(ctx context.Context, tenantID, userID string) (*port.User, error) {
	if u, ok := m.users[userID]; ok {
		return &u, nil
	}
	return nil, fmt.Errorf("user %s not found", userID)
}

// mockNotifier implements port.Notifier, failing configured recipients
type mockNotifier struct {
	sent []port.Message
	fail map[string]bool
}

func (m *mockNotifier) Send(ctx context.Context, msg port.Message) error {
	if m.fail[msg.Recipient] {
		return errors.New("smtp: connection refused")
	}
	m.sent = append(m.sent, msg)
	return nil
}

// mockWebhooks implements port.WebhookSender
type mockWebhooks struct {
	calls []port.WebhookEnvelope
	err   error
}

func (m *mockWebhooks) Call(ctx context.Context, url string, envelope port.WebhookEnvelope) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, envelope)
	return nil
}

func newTestDispatcher(dir *mockDirectory, n *mockNotifier, w *mockWebhooks) *Dispatcher {
	if dir == nil {
		dir = &mockDirectory{}
	}
	if n == nil {
		n = &mockNotifier{}
	}
	if w == nil {
		w = &mockWebhooks{}
	}
	return NewDispatcher(dir, n, w, &testLogger{})
}

func testTemplate(triggers ...template.Trigger) *template.Template {
	return &template.Template{
		ID:       7,
		TenantID: "acme",
		Triggers: triggers,
		Workflow: template.WorkflowConfig{
			Steps: []template.WorkflowStep{
				{Name: "manager_review", ApproverRole: "manager"},
			},
		},
	}
}

func testInstance() *form.Instance {
	return &form.Instance{
		ID:         42,
		TenantID:   "acme",
		TemplateID: 7,
		CreatedBy:  "u-1",
		Status:     form.StatusUnderReview,
		State:      form.WorkflowState{CurrentStep: "manager_review"},
	}
}

func TestDispatch_ZeroConditionsAlwaysFires(t *testing.T) {
	tpl := testTemplate(template.Trigger{
		ID:     "t1",
		Event:  "form_submitted",
		Action: template.ActionUpdateStatus,
		Params: map[string]any{"status": "under_review", "reason": "auto-routed"},
		Active: true,
	})
	inst := testInstance()

	d := newTestDispatcher(nil, nil, nil)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Executed != 1 || res.Total != 1 {
		t.Fatalf("executed/total = %d/%d, want 1/1", res.Executed, res.Total)
	}
	if inst.Status != form.StatusUnderReview {
		t.Errorf("status = %v, want under_review", inst.Status)
	}
	if inst.State.LastStatusReason != "auto-routed" {
		t.Errorf("reason = %q, want %q", inst.State.LastStatusReason, "auto-routed")
	}
}

func TestDispatch_FalseConditionNeverFires(t *testing.T) {
	tpl := testTemplate(template.Trigger{
		ID:         "t1",
		Event:      "form_submitted",
		Conditions: []string{"{budget} > 100000", "{currency} == 'USD'"},
		Action:     template.ActionAutoApprove,
		Active:     true,
	})
	inst := testInstance()

	d := newTestDispatcher(nil, nil, nil)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{
		FormData: map[string]any{"budget": 200000.0, "currency": "EUR"},
	})

	if res.Executed != 0 {
		t.Fatalf("executed = %d, want 0", res.Executed)
	}
	if res.Total != 1 {
		t.Fatalf("total = %d, want 1", res.Total)
	}
	if !res.Results[0].Skipped {
		t.Error("expected trigger to be recorded as skipped")
	}
	if inst.Status == form.StatusApproved {
		t.Error("auto_approve must not run when a condition is false")
	}
}

func TestDispatch_InactiveAndNonMatchingTriggersIgnored(t *testing.T) {
	tpl := testTemplate(
		template.Trigger{ID: "inactive", Event: "form_submitted", Action: template.ActionAutoApprove, Active: false},
		template.Trigger{ID: "other_event", Event: "form_approved", Action: template.ActionAutoApprove, Active: true},
	)
	inst := testInstance()

	d := newTestDispatcher(nil, nil, nil)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Total != 0 || res.Executed != 0 {
		t.Errorf("executed/total = %d/%d, want 0/0", res.Executed, res.Total)
	}
}

func TestDispatch_NotifyPartialDeliveryStillExecutes(t *testing.T) {
	dir := &mockDirectory{
		usersByRole: map[string][]port.User{
			"finance": {
				{ID: "u-2", Email: "ana@acme.example"},
				{ID: "u-3", Email: "bo@acme.example"},
			},
		},
	}
	notifier := &mockNotifier{fail: map[string]bool{"bo@acme.example": true}}

	tpl := testTemplate(template.Trigger{
		ID:     "notify-finance",
		Event:  "form_submitted",
		Action: template.ActionNotify,
		Params: map[string]any{"audience": "finance", "subject": "New submission"},
		Active: true,
	})
	inst := testInstance()

	d := newTestDispatcher(dir, notifier, nil)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Executed != 1 {
		t.Fatalf("executed = %d, want 1 (partial delivery still counts)", res.Executed)
	}

	r := res.Results[0]
	if r.Recipients != 2 || r.Delivered != 1 {
		t.Errorf("recipients/delivered = %d/%d, want 2/1", r.Recipients, r.Delivered)
	}
	if len(r.FailedRecipients) != 1 || r.FailedRecipients[0] != "bo@acme.example" {
		t.Errorf("failed recipients = %v, want [bo@acme.example]", r.FailedRecipients)
	}
}

func TestDispatch_NotifyAllRecipientsFailedIsNotExecuted(t *testing.T) {
	dir := &mockDirectory{
		usersByRole: map[string][]port.User{
			"finance": {{ID: "u-2", Email: "ana@acme.example"}},
		},
	}
	notifier := &mockNotifier{fail: map[string]bool{"ana@acme.example": true}}

	tpl := testTemplate(template.Trigger{
		ID:     "notify-finance",
		Event:  "form_submitted",
		Action: template.ActionNotify,
		Params: map[string]any{"audience": "finance"},
		Active: true,
	})

	d := newTestDispatcher(dir, notifier, nil)
	res := d.Dispatch(context.Background(), tpl, testInstance(), event.TypeFormSubmitted, Context{})

	if res.Executed != 0 {
		t.Errorf("executed = %d, want 0", res.Executed)
	}
	if res.Results[0].Error == "" {
		t.Error("expected an error on the trigger result")
	}
}

func TestDispatch_NotifyLiteralRecipients(t *testing.T) {
	notifier := &mockNotifier{}
	tpl := testTemplate(template.Trigger{
		ID:     "notify-literal",
		Event:  "form_approved",
		Action: template.ActionNotify,
		Params: map[string]any{"recipients": []any{"ops@acme.example"}},
		Active: true,
	})

	d := newTestDispatcher(nil, notifier, nil)
	res := d.Dispatch(context.Background(), tpl, testInstance(), event.TypeFormApproved, Context{})

	if res.Executed != 1 {
		t.Fatalf("executed = %d, want 1", res.Executed)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Recipient != "ops@acme.example" {
		t.Errorf("sent = %+v, want one message to ops@acme.example", notifier.sent)
	}
}

func TestDispatch_WebhookFailureDoesNotAbortSiblings(t *testing.T) {
	webhooks := &mockWebhooks{err: errors.New("webhook returned 503")}
	tpl := testTemplate(
		template.Trigger{
			ID:     "hook",
			Event:  "form_submitted",
			Action: template.ActionWebhookCall,
			Params: map[string]any{"url": "https://example.com/hook"},
			Active: true,
		},
		template.Trigger{
			ID:     "status",
			Event:  "form_submitted",
			Action: template.ActionUpdateStatus,
			Params: map[string]any{"status": "under_review"},
			Active: true,
		},
	)
	inst := testInstance()

	d := newTestDispatcher(nil, nil, webhooks)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Executed != 1 {
		t.Fatalf("executed = %d, want 1 (webhook failed, status succeeded)", res.Executed)
	}
	if res.Results[0].Executed || res.Results[0].Error == "" {
		t.Error("webhook trigger should be reported failed")
	}
	if !res.Results[1].Executed {
		t.Error("sibling trigger should still execute after webhook failure")
	}
}

func TestDispatch_EscalateRecordsWithoutMovingStep(t *testing.T) {
	tpl := testTemplate(template.Trigger{
		ID:     "esc",
		Event:  "form_submitted",
		Action: template.ActionEscalateApproval,
		Params: map[string]any{"escalate_to": "director", "reason": "SLA breach"},
		Active: true,
	})
	inst := testInstance()

	d := newTestDispatcher(nil, nil, nil)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Executed != 1 {
		t.Fatalf("executed = %d, want 1", res.Executed)
	}
	if len(inst.State.Escalations) != 1 {
		t.Fatalf("escalations = %d, want 1", len(inst.State.Escalations))
	}
	esc := inst.State.Escalations[0]
	if esc.TargetRole != "director" || esc.Reason != "SLA breach" {
		t.Errorf("escalation = %+v", esc)
	}
	if inst.State.CurrentStep != "manager_review" {
		t.Error("escalate_approval must not change current_step")
	}
}

func TestDispatch_AutoApproveStampsState(t *testing.T) {
	tpl := testTemplate(template.Trigger{
		ID:     "auto",
		Event:  "form_submitted",
		Action: template.ActionAutoApprove,
		Params: map[string]any{"level": "small_purchase"},
		Active: true,
	})
	inst := testInstance()

	d := newTestDispatcher(nil, nil, nil)
	d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if inst.Status != form.StatusApproved {
		t.Errorf("status = %v, want approved", inst.Status)
	}
	if !inst.State.AutoApproved || inst.State.AutoApproveLevel != "small_purchase" {
		t.Errorf("auto-approval marker not stamped: %+v", inst.State)
	}
	if inst.State.CompletedAt == nil {
		t.Error("expected completion timestamp")
	}
}

func TestDispatch_DuplicateTriggerIDFiresOnce(t *testing.T) {
	dup := template.Trigger{
		ID:     "dup",
		Event:  "form_submitted",
		Action: template.ActionEscalateApproval,
		Params: map[string]any{"escalate_to": "director"},
		Active: true,
	}
	tpl := testTemplate(dup, dup)
	inst := testInstance()

	logger := &testLogger{}
	d := NewDispatcher(&mockDirectory{}, &mockNotifier{}, &mockWebhooks{}, logger)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Executed != 1 {
		t.Errorf("executed = %d, want 1", res.Executed)
	}
	if len(inst.State.Escalations) != 1 {
		t.Errorf("escalations = %d, want exactly 1 for duplicate trigger ids", len(inst.State.Escalations))
	}
	if len(logger.warns) == 0 {
		t.Error("expected a configuration warning for the duplicate id")
	}
}

func TestDispatch_UpdateStatusRejectsInvalidStatus(t *testing.T) {
	tpl := testTemplate(template.Trigger{
		ID:     "bad",
		Event:  "form_submitted",
		Action: template.ActionUpdateStatus,
		Params: map[string]any{"status": "not_a_status"},
		Active: true,
	})
	inst := testInstance()

	d := newTestDispatcher(nil, nil, nil)
	res := d.Dispatch(context.Background(), tpl, inst, event.TypeFormSubmitted, Context{})

	if res.Executed != 0 {
		t.Errorf("executed = %d, want 0", res.Executed)
	}
	if inst.Status != form.StatusUnderReview {
		t.Errorf("status mutated to %v by invalid trigger config", inst.Status)
	}
}
