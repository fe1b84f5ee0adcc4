package service

import (
	"context"
	"testing"

	"github.com/formdesk/flowengine/internal/domain/event"
	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/engine/workflow"
)

type formFixture struct {
	templates *memTemplateRepo
	instances *memInstanceRepo
	history   *memHistoryRepo
	bus       *recordingBus
	svc       FormService
}

func newFormFixture(t *testing.T) *formFixture {
	t.Helper()
	f := &formFixture{
		templates: newMemTemplateRepo(),
		instances: newMemInstanceRepo(),
		history:   newMemHistoryRepo(),
		bus:       &recordingBus{},
	}
	f.svc = NewFormService(
		f.templates,
		f.instances,
		f.history,
		nopTxManager{},
		workflow.NewEngine(testLogger{}),
		f.bus,
		testLogger{},
	)
	return f
}

func (f *formFixture) publishedTemplate(t *testing.T) int64 {
	t.Helper()
	tpl := baseTemplate()
	tpl.Published = true
	if err := f.templates.Create(context.Background(), tpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl.ID
}

func TestCreateInstance_RequiresPublishedTemplate(t *testing.T) {
	f := newFormFixture(t)
	tpl := baseTemplate()
	if err := f.templates.Create(context.Background(), tpl); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	_, err := f.svc.CreateInstance(context.Background(), "tenant-1", tpl.ID, "alice", nil)
	if err == nil {
		t.Fatal("expected creation against unpublished template to fail")
	}
}

func TestCreateInstance_RaisesCreatedEvent(t *testing.T) {
	f := newFormFixture(t)
	tplID := f.publishedTemplate(t)

	inst, err := f.svc.CreateInstance(context.Background(), "tenant-1", tplID, "alice", map[string]any{"title": "x"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if inst.Status != form.StatusDraft || inst.State.CurrentStep != form.StepDraft {
		t.Errorf("new instance status=%q step=%q", inst.Status, inst.State.CurrentStep)
	}

	types := f.bus.Types()
	if len(types) != 1 || types[0] != event.TypeInstanceCreated {
		t.Errorf("events = %v, want [instance_created]", types)
	}
}

func TestCreateInstance_TenantMismatchRejected(t *testing.T) {
	f := newFormFixture(t)
	tplID := f.publishedTemplate(t)

	if _, err := f.svc.CreateInstance(context.Background(), "tenant-2", tplID, "alice", nil); err == nil {
		t.Fatal("expected cross-tenant instance creation to fail")
	}
}

func TestTransition_PersistsInstanceHistoryAndEvents(t *testing.T) {
	f := newFormFixture(t)
	tplID := f.publishedTemplate(t)

	inst, err := f.svc.CreateInstance(context.Background(), "tenant-1", tplID, "alice",
		map[string]any{"title": "Laptops", "budget": 4200})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	res, err := f.svc.Transition(context.Background(), inst.ID, workflow.Request{
		Action: workflow.ActionSubmit,
		Actor:  workflow.Actor{ID: "alice"},
	})
	if err != nil {
		t.Fatalf("transition errored: %v", err)
	}
	if !res.Success {
		t.Fatalf("submit failed: %s", res.Message)
	}

	stored, _ := f.instances.GetByID(context.Background(), inst.ID)
	if stored.Status != form.StatusUnderReview || stored.State.CurrentStep != "manager_review" {
		t.Errorf("persisted instance status=%q step=%q", stored.Status, stored.State.CurrentStep)
	}

	count, _ := f.history.CountByInstance(context.Background(), inst.ID)
	if count != 1 {
		t.Errorf("history entries = %d, want exactly 1", count)
	}

	var sawSubmitted bool
	for _, typ := range f.bus.Types() {
		if typ == event.TypeFormSubmitted {
			sawSubmitted = true
		}
	}
	if !sawSubmitted {
		t.Error("form_submitted event was not raised")
	}
}

func TestTransition_DeniedLeavesNoTrace(t *testing.T) {
	f := newFormFixture(t)
	tplID := f.publishedTemplate(t)

	inst, err := f.svc.CreateInstance(context.Background(), "tenant-1", tplID, "alice",
		map[string]any{"title": "Laptops", "budget": 4200})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	eventsBefore := len(f.bus.Types())

	res, err := f.svc.Transition(context.Background(), inst.ID, workflow.Request{
		Action: workflow.ActionSubmit,
		Actor:  workflow.Actor{ID: "mallory"},
	})
	if err != nil {
		t.Fatalf("transition errored: %v", err)
	}
	if res.Success {
		t.Fatal("non-creator submit must be denied")
	}

	stored, _ := f.instances.GetByID(context.Background(), inst.ID)
	if stored.Status != form.StatusDraft {
		t.Errorf("denied transition mutated status to %q", stored.Status)
	}
	if count, _ := f.history.CountByInstance(context.Background(), inst.ID); count != 0 {
		t.Errorf("denied transition wrote %d history entries", count)
	}
	if len(f.bus.Types()) != eventsBefore {
		t.Error("denied transition raised events")
	}
}

func TestTransition_FullApprovalRun(t *testing.T) {
	f := newFormFixture(t)
	tplID := f.publishedTemplate(t)

	inst, err := f.svc.CreateInstance(context.Background(), "tenant-1", tplID, "alice",
		map[string]any{"title": "Laptops", "budget": 4200})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if res, _ := f.svc.Transition(context.Background(), inst.ID, workflow.Request{
		Action: workflow.ActionSubmit, Actor: workflow.Actor{ID: "alice"},
	}); !res.Success {
		t.Fatalf("submit failed: %s", res.Message)
	}

	res, err := f.svc.Transition(context.Background(), inst.ID, workflow.Request{
		Action: workflow.ActionApprove,
		Actor:  workflow.Actor{ID: "bob", Roles: []string{"manager"}},
		Notes:  "within budget",
	})
	if err != nil {
		t.Fatalf("approve errored: %v", err)
	}
	if !res.Success {
		t.Fatalf("approve failed: %s", res.Message)
	}

	stored, _ := f.instances.GetByID(context.Background(), inst.ID)
	if stored.Status != form.StatusApproved {
		t.Errorf("status = %q, want approved", stored.Status)
	}
	if count, _ := f.history.CountByInstance(context.Background(), inst.ID); count != 2 {
		t.Errorf("history entries = %d, want 2", count)
	}
}

func TestUpdateDraft_OnlyCreatorAndOnlyDrafts(t *testing.T) {
	f := newFormFixture(t)
	tplID := f.publishedTemplate(t)

	inst, err := f.svc.CreateInstance(context.Background(), "tenant-1", tplID, "alice",
		map[string]any{"title": "x", "budget": 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := f.svc.UpdateDraft(context.Background(), inst.ID, "mallory", map[string]any{"title": "y"}); err == nil {
		t.Fatal("expected non-creator edit to fail")
	}

	if _, err := f.svc.UpdateDraft(context.Background(), inst.ID, "alice", map[string]any{"title": "y", "budget": 2}); err != nil {
		t.Fatalf("creator edit failed: %v", err)
	}

	if res, _ := f.svc.Transition(context.Background(), inst.ID, workflow.Request{
		Action: workflow.ActionSubmit, Actor: workflow.Actor{ID: "alice"},
	}); !res.Success {
		t.Fatalf("submit failed: %s", res.Message)
	}

	if _, err := f.svc.UpdateDraft(context.Background(), inst.ID, "alice", map[string]any{"title": "z"}); err == nil {
		t.Fatal("expected edit of submitted instance to fail")
	}
}
