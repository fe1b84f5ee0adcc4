package event

// Type identifies the type of lifecycle event. The string values are what
// template trigger configurations reference in their "event" field.
type Type string

const (
	TypeInstanceCreated       Type = "instance_created"
	TypeFormSubmitted         Type = "form_submitted"
	TypeFormApproved          Type = "form_approved"
	TypeFormRejected          Type = "form_rejected"
	TypeChangesRequested      Type = "changes_requested"
	TypeWorkflowStepCompleted Type = "workflow_step_completed"
	TypeEscalationTriggered   Type = "escalation_triggered"
	TypeStatusChanged         Type = "status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceCreated,
		TypeFormSubmitted,
		TypeFormApproved,
		TypeFormRejected,
		TypeChangesRequested,
		TypeWorkflowStepCompleted,
		TypeEscalationTriggered,
		TypeStatusChanged:
		return true
	default:
		return false
	}
}
