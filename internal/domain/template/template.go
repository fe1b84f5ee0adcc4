package template

import (
	"time"
)

// ComplianceLevel indicates how strictly a template enforces funder rules
type ComplianceLevel string

const (
	ComplianceStandard ComplianceLevel = "standard"
	ComplianceEnhanced ComplianceLevel = "enhanced"
	ComplianceStrict   ComplianceLevel = "strict"
)

// RuleType classifies a validation rule
type RuleType string

const (
	RuleField         RuleType = "field"
	RuleCrossField    RuleType = "cross_field"
	RuleBusinessLogic RuleType = "business_logic"
	RuleCompliance    RuleType = "compliance"
)

// Severity indicates whether a violated rule blocks submission
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ActionKind identifies the side effect a trigger executes when it fires
type ActionKind string

const (
	ActionNotify           ActionKind = "notify"
	ActionWebhookCall      ActionKind = "webhook_call"
	ActionEscalateApproval ActionKind = "escalate_approval"
	ActionAutoApprove      ActionKind = "auto_approve"
	ActionUpdateStatus     ActionKind = "update_status"
)

// IsValid returns true if the action kind is one of the defined constants
func (a ActionKind) IsValid() bool {
	switch a {
	case ActionNotify, ActionWebhookCall, ActionEscalateApproval, ActionAutoApprove, ActionUpdateStatus:
		return true
	default:
		return false
	}
}

// Field is a single input in a form section
type Field struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Type         string         `json:"type"`
	Required     bool           `json:"required"`
	Validation   map[string]any `json:"validation,omitempty"`
	VisibleIf    string         `json:"visible_if,omitempty"`
	AutoPopulate string         `json:"auto_populate,omitempty"`
	Formula      string         `json:"formula,omitempty"`
}

// Section groups fields within a form step
type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

// Step is one page of the form as presented to the submitter
type Step struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// ValidationRule is a stored condition checked at submission time
type ValidationRule struct {
	ID        string   `json:"id"`
	Type      RuleType `json:"type"`
	Condition string   `json:"condition"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// WorkflowStep is a named approval gate
type WorkflowStep struct {
	Name         string `json:"name"`
	ApproverRole string `json:"approver_role"`
	Condition    string `json:"condition,omitempty"`
	SLADays      int    `json:"sla_days"`
	EscalateTo   string `json:"escalate_to,omitempty"`
}

// WorkflowConfig holds the ordered approval sequence for a template
type WorkflowConfig struct {
	Steps []WorkflowStep `json:"steps"`
}

// StepByName returns the workflow step with the given name, or nil
func (w WorkflowConfig) StepByName(name string) *WorkflowStep {
	for i := range w.Steps {
		if w.Steps[i].Name == name {
			return &w.Steps[i]
		}
	}
	return nil
}

// EscalationRule defines when an instance should be handed to another role
type EscalationRule struct {
	Trigger        string `json:"trigger"`
	EscalateTo     string `json:"escalate_to"`
	ThresholdHours int    `json:"threshold_hours"`
}

// Trigger is a configured (event, conditions, action) tuple evaluated on
// lifecycle events
type Trigger struct {
	ID         string         `json:"id"`
	Event      string         `json:"event"`
	Conditions []string       `json:"conditions,omitempty"`
	Action     ActionKind     `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Active     bool           `json:"active"`
}

// Template is the versioned configuration describing a form's steps, fields,
// validation rules, workflow, and triggers. Once published it is immutable;
// changes produce a new version.
type Template struct {
	ID              int64            `json:"id"`
	TenantID        string           `json:"tenant_id"`
	Category        string           `json:"category"`
	Name            string           `json:"name"`
	Version         int              `json:"version"`
	Published       bool             `json:"published"`
	Methodology     Methodology      `json:"methodology,omitempty"`
	ComplianceLevel ComplianceLevel  `json:"compliance_level"`
	Steps           []Step           `json:"steps"`
	ValidationRules []ValidationRule `json:"validation_rules"`
	Workflow        WorkflowConfig   `json:"workflow"`
	EscalationRules []EscalationRule `json:"escalation_rules,omitempty"`
	Triggers        []Trigger        `json:"triggers,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HasStep returns true if a form step with the given id exists
func (t *Template) HasStep(id string) bool {
	for _, s := range t.Steps {
		if s.ID == id {
			return true
		}
	}
	return false
}

// HasValidationRule returns true if a rule with the given id exists
func (t *Template) HasValidationRule(id string) bool {
	for _, r := range t.ValidationRules {
		if r.ID == id {
			return true
		}
	}
	return false
}

// HasWorkflowStep returns true if a workflow step with the given name exists
func (t *Template) HasWorkflowStep(name string) bool {
	return t.Workflow.StepByName(name) != nil
}

// FieldByID returns the field with the given id, or nil
func (t *Template) FieldByID(id string) *Field {
	for si := range t.Steps {
		for ci := range t.Steps[si].Sections {
			for fi := range t.Steps[si].Sections[ci].Fields {
				f := &t.Steps[si].Sections[ci].Fields[fi]
				if f.ID == id {
					return f
				}
			}
		}
	}
	return nil
}

// Fields returns every field across all steps and sections in order
func (t *Template) Fields() []Field {
	var out []Field
	for _, s := range t.Steps {
		for _, sec := range s.Sections {
			out = append(out, sec.Fields...)
		}
	}
	return out
}

// ActiveTriggersFor returns the active triggers registered for an event
func (t *Template) ActiveTriggersFor(eventName string) []Trigger {
	var out []Trigger
	for _, tr := range t.Triggers {
		if tr.Active && tr.Event == eventName {
			out = append(out, tr)
		}
	}
	return out
}
