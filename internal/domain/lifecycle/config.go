package lifecycle

import "github.com/formdesk/flowengine/internal/domain/form"

// NewFormLifecycle returns a builder preconfigured with the form approval
// lifecycle. Terminal statuses (completed, rejected, cancelled) have no
// outgoing transitions.
func NewFormLifecycle() Builder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StateSubmitted).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateSubmitted).
		Permit(TriggerStartReview, StateUnderReview).
		Permit(TriggerAutoApprove, StateApproved).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateUnderReview).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerAutoApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerRequestChanges, StateDraft).
		Permit(TriggerCancel, StateCancelled)

	b.Configure(StateApproved).
		Permit(TriggerComplete, StateCompleted)

	return b
}

// MachineAt builds a form lifecycle machine positioned at the given status
func MachineAt(status form.Status) Machine {
	return NewFormLifecycle().Build(State(status))
}
