package methodology

import (
	"github.com/formdesk/flowengine/internal/domain/template"
)

// WorldBankStepID is the reserved form step id injected by the World Bank adapter
const WorldBankStepID = "worldbank_compliance"

// worldbankAdapter applies World Bank IPF procurement and safeguards requirements
type worldbankAdapter struct{}

// NewWorldBankAdapter creates the World Bank methodology adapter
func NewWorldBankAdapter() Adapter {
	return &worldbankAdapter{}
}

func (a *worldbankAdapter) Methodology() template.Methodology {
	return template.MethodologyWorldBank
}

func (a *worldbankAdapter) Adapt(tpl *template.Template) {
	mergeComplianceStep(tpl, template.Step{
		ID:    WorldBankStepID,
		Title: "World Bank Compliance",
		Sections: []template.Section{
			{
				ID:    "wb_procurement",
				Title: "Procurement",
				Fields: []template.Field{
					{ID: "step_reference", Label: "STEP system reference", Type: "text", Required: true},
					{ID: "procurement_method", Label: "Procurement method", Type: "select", Required: true},
					{ID: "budget", Label: "Contract value (USD)", Type: "number", Required: true},
				},
			},
			{
				ID:    "wb_safeguards",
				Title: "Environmental and Social Safeguards",
				Fields: []template.Field{
					{ID: "esf_category", Label: "ESF risk classification", Type: "select", Required: true},
					{
						ID:        "esmp_reference",
						Label:     "ESMP reference",
						Type:      "text",
						VisibleIf: "{esf_category} == 'high'",
					},
				},
			},
		},
	})

	mergeValidationRules(tpl, []template.ValidationRule{
		{
			ID:        "wb_step_registered",
			Type:      template.RuleCompliance,
			Condition: "{step_reference} != ''",
			Message:   "The activity must be registered in the STEP system",
			Severity:  template.SeverityError,
		},
		{
			ID:        "wb_esf_classified",
			Type:      template.RuleCompliance,
			Condition: "{esf_category} != ''",
			Message:   "An ESF risk classification is required",
			Severity:  template.SeverityError,
		},
		{
			ID:        "wb_prior_review",
			Type:      template.RuleBusinessLogic,
			Condition: "IF({budget} > 500000, 0, 1)",
			Message:   "Contracts above the prior-review threshold require Bank no-objection before award",
			Severity:  template.SeverityWarning,
		},
	})

	mergeWorkflowSteps(tpl, []template.WorkflowStep{
		{
			Name:         "wb_procurement_review",
			ApproverRole: "procurement_specialist",
			SLADays:      7,
			EscalateTo:   "task_team_leader",
		},
		{
			Name:         "wb_no_objection_review",
			ApproverRole: "task_team_leader",
			Condition:    "{budget} > 500000",
			SLADays:      15,
			EscalateTo:   "practice_manager",
		},
	})

	tpl.ComplianceLevel = template.ComplianceStrict
}

func (a *worldbankAdapter) Requirements() []Requirement {
	return []Requirement{
		{ID: "wb-step", Category: "procurement", Description: "Activity registered and tracked in STEP", Mandatory: true},
		{ID: "wb-esf", Category: "safeguards", Description: "ESF risk classification with mitigation plan where required", Mandatory: true},
		{ID: "wb-prior-review", Category: "procurement", Description: "Bank no-objection for contracts above the prior-review threshold", Mandatory: true},
		{ID: "wb-audit", Category: "financial", Description: "Annual audited financial statements", Mandatory: false},
	}
}

func (a *worldbankAdapter) ComplianceConfig() ComplianceConfig {
	return ComplianceConfig{
		Level:             template.ComplianceStrict,
		ReservedStepID:    WorldBankStepID,
		ReportingInterval: 90,
		RetentionYears:    7,
		AuditThresholdUSD: 500000,
	}
}
