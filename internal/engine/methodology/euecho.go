package methodology

import (
	"github.com/formdesk/flowengine/internal/domain/template"
)

// EUECHOStepID is the reserved form step id injected by the EU ECHO adapter
const EUECHOStepID = "eu_echo_compliance"

// euechoAdapter applies EU DG ECHO humanitarian grant compliance requirements
type euechoAdapter struct{}

// NewEUECHOAdapter creates the EU ECHO methodology adapter
func NewEUECHOAdapter() Adapter {
	return &euechoAdapter{}
}

func (a *euechoAdapter) Methodology() template.Methodology {
	return template.MethodologyEUECHO
}

func (a *euechoAdapter) Adapt(tpl *template.Template) {
	mergeComplianceStep(tpl, template.Step{
		ID:    EUECHOStepID,
		Title: "EU ECHO Compliance",
		Sections: []template.Section{
			{
				ID:    "echo_partnership",
				Title: "Partnership",
				Fields: []template.Field{
					{ID: "fpa_number", Label: "Framework Partnership Agreement number", Type: "text", Required: true},
					{ID: "single_form_ref", Label: "Single Form reference", Type: "text", Required: true},
					{ID: "visibility_plan", Label: "Visibility plan attached", Type: "boolean", Required: true},
				},
			},
			{
				ID:    "echo_financials",
				Title: "Financials",
				Fields: []template.Field{
					{ID: "budget", Label: "Total budget (EUR)", Type: "number", Required: true},
					{ID: "cofinance_pct", Label: "Co-financing (%)", Type: "number", Required: true},
					{
						ID:           "eligibility_end_date",
						Label:        "Cost eligibility end date",
						Type:         "date",
						AutoPopulate: "DATE_ADD({action_start_date}, INTERVAL 12 MONTH)",
					},
				},
			},
		},
	})

	mergeValidationRules(tpl, []template.ValidationRule{
		{
			ID:        "echo_fpa_active",
			Type:      template.RuleCompliance,
			Condition: "{fpa_number} != ''",
			Message:   "An active Framework Partnership Agreement is required",
			Severity:  template.SeverityError,
		},
		{
			ID:        "echo_cofinance_minimum",
			Type:      template.RuleBusinessLogic,
			Condition: "{cofinance_pct} >= 5",
			Message:   "ECHO actions require at least 5% co-financing",
			Severity:  template.SeverityError,
		},
		{
			ID:        "echo_visibility",
			Type:      template.RuleCompliance,
			Condition: "{visibility_plan} == true",
			Message:   "A visibility plan must accompany the Single Form",
			Severity:  template.SeverityWarning,
		},
	})

	mergeWorkflowSteps(tpl, []template.WorkflowStep{
		{
			Name:         "echo_desk_officer_review",
			ApproverRole: "desk_officer",
			SLADays:      7,
			EscalateTo:   "head_of_unit",
		},
		{
			Name:         "echo_finance_review",
			ApproverRole: "finance_officer",
			Condition:    "{budget} > 100000",
			SLADays:      5,
			EscalateTo:   "head_of_unit",
		},
	})

	tpl.ComplianceLevel = template.ComplianceEnhanced
}

func (a *euechoAdapter) Requirements() []Requirement {
	return []Requirement{
		{ID: "echo-fpa", Category: "partnership", Description: "Signed Framework Partnership Agreement", Mandatory: true},
		{ID: "echo-single-form", Category: "reporting", Description: "Single Form submitted via APPEL", Mandatory: true},
		{ID: "echo-cofinance", Category: "financial", Description: "Minimum 5% co-financing of eligible costs", Mandatory: true},
		{ID: "echo-visibility", Category: "visibility", Description: "EU humanitarian aid visibility plan", Mandatory: false},
	}
}

func (a *euechoAdapter) ComplianceConfig() ComplianceConfig {
	return ComplianceConfig{
		Level:             template.ComplianceEnhanced,
		ReservedStepID:    EUECHOStepID,
		ReportingInterval: 180,
		RetentionYears:    5,
		AuditThresholdUSD: 100000,
		RequiresCofinance: true,
	}
}
