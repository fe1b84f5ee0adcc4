package methodology

import (
	"github.com/formdesk/flowengine/internal/domain/template"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Requirement is one documented obligation a methodology imposes on a form
type Requirement struct {
	ID          string `json:"id"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Mandatory   bool   `json:"mandatory"`
}

// ComplianceConfig is the structured configuration a methodology mandates
type ComplianceConfig struct {
	Level              template.ComplianceLevel `json:"level"`
	ReservedStepID     string                   `json:"reserved_step_id"`
	ReportingInterval  int                      `json:"reporting_interval_days"`
	RetentionYears     int                      `json:"retention_years"`
	AuditThresholdUSD  float64                  `json:"audit_threshold_usd"`
	RequiresCofinance  bool                     `json:"requires_cofinance"`
}

// Adapter transforms a generic template draft into a methodology-specific
// one. Adapt must be idempotent: running it twice produces the same template.
type Adapter interface {
	// Methodology identifies the profile this adapter implements
	Methodology() template.Methodology

	// Adapt injects the methodology's compliance step, validation rules, and
	// workflow steps into the draft in place
	Adapt(tpl *template.Template)

	// Requirements returns the methodology's documented requirement list
	Requirements() []Requirement

	// ComplianceConfig returns the methodology's structured configuration
	ComplianceConfig() ComplianceConfig
}

// mergeComplianceStep appends the adapter's compliance step unless a step
// with the reserved id already exists
func mergeComplianceStep(tpl *template.Template, step template.Step) {
	if tpl.HasStep(step.ID) {
		return
	}
	tpl.Steps = append(tpl.Steps, step)
}

// mergeValidationRules appends rules keyed by id without removing or
// replacing existing rules
func mergeValidationRules(tpl *template.Template, rules []template.ValidationRule) {
	for _, r := range rules {
		if tpl.HasValidationRule(r.ID) {
			continue
		}
		tpl.ValidationRules = append(tpl.ValidationRules, r)
	}
}

// mergeWorkflowSteps appends approval steps keyed by name, preserving any
// pre-existing steps and their order
func mergeWorkflowSteps(tpl *template.Template, steps []template.WorkflowStep) {
	for _, s := range steps {
		if tpl.HasWorkflowStep(s.Name) {
			continue
		}
		tpl.Workflow.Steps = append(tpl.Workflow.Steps, s)
	}
}
