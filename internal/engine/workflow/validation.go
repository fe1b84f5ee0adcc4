package workflow

import (
	"fmt"

	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/eval"
)

// ValidationError describes one failed check at submission time
type ValidationError struct {
	Field    string            `json:"field,omitempty"`
	RuleID   string            `json:"rule_id,omitempty"`
	Message  string            `json:"message"`
	Severity template.Severity `json:"severity"`
}

// Validate runs required-field checks and the template's stored validation
// rules against the data. Errors block submission; warnings are reported but
// do not block.
func (e *Engine) Validate(tpl *template.Template, data map[string]any) (errs, warns []ValidationError) {
	for _, f := range tpl.Fields() {
		if !f.Required {
			continue
		}
		// A field hidden by its visibility condition is not required
		if f.VisibleIf != "" && !eval.EvaluateBool(f.VisibleIf, data) {
			continue
		}
		if isEmpty(data[f.ID]) {
			errs = append(errs, ValidationError{
				Field:    f.ID,
				Message:  fmt.Sprintf("field %q is required", f.ID),
				Severity: template.SeverityError,
			})
		}
	}

	for _, rule := range tpl.ValidationRules {
		if rule.Condition == "" {
			continue
		}
		// Rules state what must hold: a false condition is a violation
		if eval.EvaluateBool(rule.Condition, data) {
			continue
		}
		ve := ValidationError{
			RuleID:   rule.ID,
			Message:  rule.Message,
			Severity: rule.Severity,
		}
		if ve.Message == "" {
			ve.Message = fmt.Sprintf("validation rule %q failed", rule.ID)
		}
		if rule.Severity == template.SeverityWarning {
			warns = append(warns, ve)
		} else {
			errs = append(errs, ve)
		}
	}

	return errs, warns
}

// isEmpty reports whether a submitted value counts as absent
func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
