package lifecycle

import "github.com/formdesk/flowengine/internal/domain/form"

// State wraps a form status for use in the lifecycle machine
type State form.Status

const (
	StateDraft       State = State(form.StatusDraft)
	StateSubmitted   State = State(form.StatusSubmitted)
	StateUnderReview State = State(form.StatusUnderReview)
	StateApproved    State = State(form.StatusApproved)
	StateRejected    State = State(form.StatusRejected)
	StateCompleted   State = State(form.StatusCompleted)
	StateCancelled   State = State(form.StatusCancelled)
)

// IsValid returns true if the state maps to a defined form status
func (s State) IsValid() bool {
	return form.Status(s).IsValid()
}

// IsTerminal returns true if no transitions are defined out of the state
func (s State) IsTerminal() bool {
	return form.Status(s).IsTerminal()
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
