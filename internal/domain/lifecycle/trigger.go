package lifecycle

// Trigger represents an action that can cause a status transition
type Trigger string

const (
	TriggerSubmit         Trigger = "SUBMIT"
	TriggerStartReview    Trigger = "START_REVIEW"
	TriggerApprove        Trigger = "APPROVE"
	TriggerAutoApprove    Trigger = "AUTO_APPROVE"
	TriggerReject         Trigger = "REJECT"
	TriggerRequestChanges Trigger = "REQUEST_CHANGES"
	TriggerComplete       Trigger = "COMPLETE"
	TriggerCancel         Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
