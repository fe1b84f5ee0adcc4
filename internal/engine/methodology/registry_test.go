package methodology

import (
	"encoding/json"
	"testing"

	"github.com/formdesk/flowengine/internal/domain/template"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

func newDraft(m template.Methodology) *template.Template {
	return &template.Template{
		ID:          1,
		TenantID:    "acme",
		Category:    "procurement",
		Name:        "Purchase Request",
		Methodology: m,
		ComplianceLevel: template.ComplianceStandard,
		Steps: []template.Step{
			{ID: "details", Title: "Details", Sections: []template.Section{
				{ID: "main", Fields: []template.Field{
					{ID: "budget", Type: "number", Required: true},
				}},
			}},
		},
		Workflow: template.WorkflowConfig{
			Steps: []template.WorkflowStep{
				{Name: "manager_review", ApproverRole: "manager", SLADays: 3},
			},
		},
	}
}

func TestRegistry_AdaptInjectsComplianceStep(t *testing.T) {
	tests := []struct {
		methodology template.Methodology
		stepID      string
		level       template.ComplianceLevel
	}{
		{template.MethodologyUSAID, USAIDStepID, template.ComplianceStrict},
		{template.MethodologyEUECHO, EUECHOStepID, template.ComplianceEnhanced},
		{template.MethodologyWorldBank, WorldBankStepID, template.ComplianceStrict},
	}

	for _, tt := range tests {
		t.Run(string(tt.methodology), func(t *testing.T) {
			r := NewRegistry(nopLogger{})
			tpl := r.Adapt(newDraft(tt.methodology))

			if !tpl.HasStep(tt.stepID) {
				t.Errorf("expected compliance step %q to be injected", tt.stepID)
			}
			if tpl.ComplianceLevel != tt.level {
				t.Errorf("ComplianceLevel = %v, want %v", tpl.ComplianceLevel, tt.level)
			}
			if len(tpl.ValidationRules) == 0 {
				t.Error("expected methodology validation rules to be appended")
			}
			if len(tpl.Workflow.Steps) < 2 {
				t.Errorf("expected workflow steps to be merged, got %d", len(tpl.Workflow.Steps))
			}
			// pre-existing step preserved in position
			if tpl.Workflow.Steps[0].Name != "manager_review" {
				t.Errorf("pre-existing workflow step displaced: %v", tpl.Workflow.Steps[0].Name)
			}
		})
	}
}

func TestRegistry_AdaptIsIdempotent(t *testing.T) {
	for _, m := range []template.Methodology{
		template.MethodologyUSAID,
		template.MethodologyEUECHO,
		template.MethodologyWorldBank,
	} {
		t.Run(string(m), func(t *testing.T) {
			r := NewRegistry(nopLogger{})

			once := r.Adapt(newDraft(m))
			onceJSON, _ := json.Marshal(once)

			twice := r.Adapt(once)
			twiceJSON, _ := json.Marshal(twice)

			if string(onceJSON) != string(twiceJSON) {
				t.Errorf("second adaptation changed the template:\nonce:  %s\ntwice: %s", onceJSON, twiceJSON)
			}
		})
	}
}

func TestRegistry_UnknownMethodologyIsNoOp(t *testing.T) {
	r := NewRegistry(nopLogger{})
	draft := newDraft(template.Methodology("mystery_funder"))
	before, _ := json.Marshal(draft)

	got := r.Adapt(draft)
	after, _ := json.Marshal(got)

	if string(before) != string(after) {
		t.Error("unknown methodology must leave the draft unchanged")
	}
}

func TestRegistry_NoMethodologyIsNoOp(t *testing.T) {
	r := NewRegistry(nopLogger{})
	draft := newDraft(template.MethodologyNone)
	before, _ := json.Marshal(draft)

	got := r.Adapt(draft)
	after, _ := json.Marshal(got)

	if string(before) != string(after) {
		t.Error("template without methodology must be returned unchanged")
	}
}

func TestRegistry_Requirements(t *testing.T) {
	r := NewRegistry(nopLogger{})

	reqs := r.Requirements(template.MethodologyUSAID)
	if len(reqs) == 0 {
		t.Fatal("expected USAID requirements")
	}
	for _, req := range reqs {
		if req.ID == "" || req.Description == "" {
			t.Errorf("requirement missing id or description: %+v", req)
		}
	}

	if got := r.Requirements(template.Methodology("nope")); got != nil {
		t.Errorf("unknown methodology requirements = %v, want nil", got)
	}
}

func TestRegistry_ComplianceConfig(t *testing.T) {
	r := NewRegistry(nopLogger{})

	cfg, ok := r.ComplianceConfig(template.MethodologyWorldBank)
	if !ok {
		t.Fatal("expected config for worldbank")
	}
	if cfg.ReservedStepID != WorldBankStepID {
		t.Errorf("ReservedStepID = %q, want %q", cfg.ReservedStepID, WorldBankStepID)
	}

	if _, ok := r.ComplianceConfig(template.Methodology("nope")); ok {
		t.Error("expected no config for unknown methodology")
	}
}
