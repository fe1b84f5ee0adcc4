package form

import "time"

// Status is the overall lifecycle status of a form instance
type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusDraft:       true,
	StatusSubmitted:   true,
	StatusUnderReview: true,
	StatusApproved:    true,
	StatusRejected:    true,
	StatusCompleted:   true,
	StatusCancelled:   true,
}

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusRejected:  true,
	StatusCancelled: true,
}

// IsValid returns true if the status is a defined lifecycle status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Reserved current_step markers. Anything else must be a workflow step name
// present in the instance's template.
const (
	StepDraft     = "draft"
	StepCompleted = "completed"
	StepRejected  = "rejected"
)

// StepRecord is one completed workflow step. Records are append-only: once
// written they are never edited or removed.
type StepRecord struct {
	Step      string    `json:"step"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Notes     string    `json:"notes,omitempty"`
}

// EscalationRecord captures a handoff of the instance to another role. Step
// is the workflow step the escalation was raised on; the target role acts on
// that step, current_step itself never leaves the configured step names.
type EscalationRecord struct {
	Step       string    `json:"step,omitempty"`
	TargetRole string    `json:"target_role"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkflowState is the current-position summary of an instance's workflow.
// It is replaced as a whole on each transition; the audit trail lives in
// HistoryEntry rows, not here.
type WorkflowState struct {
	CurrentStep    string             `json:"current_step"`
	StepsCompleted []StepRecord       `json:"steps_completed"`
	Escalations    []EscalationRecord `json:"escalations,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	AutoApproved   bool               `json:"auto_approved,omitempty"`
	AutoApproveLevel string           `json:"auto_approve_level,omitempty"`
	LastStatusReason string           `json:"last_status_reason,omitempty"`
}

// NewWorkflowState returns the initial state for a freshly created instance
func NewWorkflowState() WorkflowState {
	return WorkflowState{CurrentStep: StepDraft}
}

// Instance is one concrete submission bound to a template
type Instance struct {
	ID          int64          `json:"id"`
	TenantID    string         `json:"tenant_id"`
	TemplateID  int64          `json:"template_id"`
	CreatedBy   string         `json:"created_by"`
	Status      Status         `json:"status"`
	Data        map[string]any `json:"data"`
	State       WorkflowState  `json:"state"`
	SubmittedAt *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// HistoryEntry is one append-only audit record. Exactly one entry is written
// per workflow transition, regardless of action.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	InstanceID     int64     `json:"instance_id"`
	Actor          string    `json:"actor"`
	Action         string    `json:"action"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	ResultingStep  string    `json:"resulting_step"`
	Notes          string    `json:"notes,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
