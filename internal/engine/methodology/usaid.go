package methodology

import (
	"github.com/formdesk/flowengine/internal/domain/template"
)

// USAIDStepID is the reserved form step id injected by the USAID adapter
const USAIDStepID = "usaid_compliance"

// usaidAdapter applies USAID (ADS 303) award compliance requirements
type usaidAdapter struct{}

// NewUSAIDAdapter creates the USAID methodology adapter
func NewUSAIDAdapter() Adapter {
	return &usaidAdapter{}
}

func (a *usaidAdapter) Methodology() template.Methodology {
	return template.MethodologyUSAID
}

func (a *usaidAdapter) Adapt(tpl *template.Template) {
	mergeComplianceStep(tpl, template.Step{
		ID:    USAIDStepID,
		Title: "USAID Compliance",
		Sections: []template.Section{
			{
				ID:    "usaid_certifications",
				Title: "Certifications",
				Fields: []template.Field{
					{ID: "uei_number", Label: "Unique Entity Identifier (UEI)", Type: "text", Required: true},
					{ID: "atc_certified", Label: "Anti-Terrorism Certification signed", Type: "boolean", Required: true},
					{ID: "debarment_checked", Label: "SAM.gov exclusion list checked", Type: "boolean", Required: true},
				},
			},
			{
				ID:    "usaid_budget_detail",
				Title: "Budget Detail",
				Fields: []template.Field{
					{ID: "budget", Label: "Total budget (USD)", Type: "number", Required: true},
					{ID: "cost_share_pct", Label: "Cost share (%)", Type: "number", Required: false},
					{
						ID:      "indirect_costs",
						Label:   "Indirect costs (USD)",
						Type:    "number",
						Formula: "{budget} * {nicra_rate} / 100",
					},
				},
			},
		},
	})

	mergeValidationRules(tpl, []template.ValidationRule{
		{
			ID:        "usaid_atc_required",
			Type:      template.RuleCompliance,
			Condition: "{atc_certified} == true",
			Message:   "Anti-Terrorism Certification is required for USAID-funded activity",
			Severity:  template.SeverityError,
		},
		{
			ID:        "usaid_procurement_competition",
			Type:      template.RuleBusinessLogic,
			Condition: "IF({budget} > 25000, 0, 1)",
			Message:   "Verify three quotations are on file for purchases above the micro-purchase threshold",
			Severity:  template.SeverityWarning,
		},
		{
			ID:        "usaid_cost_share_documented",
			Type:      template.RuleCrossField,
			Condition: "{cost_share_pct} <= 100",
			Message:   "Cost share percentage cannot exceed 100",
			Severity:  template.SeverityWarning,
		},
	})

	mergeWorkflowSteps(tpl, []template.WorkflowStep{
		{
			Name:         "usaid_compliance_review",
			ApproverRole: "compliance_officer",
			SLADays:      5,
			EscalateTo:   "chief_of_party",
		},
		{
			Name:         "usaid_agreement_officer_review",
			ApproverRole: "agreement_officer",
			Condition:    "{budget} > 250000",
			SLADays:      10,
			EscalateTo:   "mission_director",
		},
	})

	tpl.ComplianceLevel = template.ComplianceStrict
}

func (a *usaidAdapter) Requirements() []Requirement {
	return []Requirement{
		{ID: "usaid-uei", Category: "registration", Description: "Active UEI registration in SAM.gov", Mandatory: true},
		{ID: "usaid-atc", Category: "certification", Description: "Signed Anti-Terrorism Certification on file", Mandatory: true},
		{ID: "usaid-procurement", Category: "procurement", Description: "Competitive quotations above the micro-purchase threshold", Mandatory: true},
		{ID: "usaid-marking", Category: "visibility", Description: "Branding and marking plan per ADS 320", Mandatory: false},
	}
}

func (a *usaidAdapter) ComplianceConfig() ComplianceConfig {
	return ComplianceConfig{
		Level:             template.ComplianceStrict,
		ReservedStepID:    USAIDStepID,
		ReportingInterval: 90,
		RetentionYears:    3,
		AuditThresholdUSD: 750000,
	}
}
