package port

import (
	"context"
	"time"
)

// User is the minimal view of a directory user the engine needs
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserDirectory resolves roles to users within a tenant. It is owned by the
// surrounding identity system; the engine only reads from it.
type UserDirectory interface {
	// UsersWithRole returns all users holding the role in the tenant
	UsersWithRole(ctx context.Context, tenantID, role string) ([]User, error)

	// GetUser returns a single user by id
	GetUser(ctx context.Context, tenantID, userID string) (*User, error)
}

// Message is one outbound notification to a single recipient
type Message struct {
	TenantID  string `json:"tenant_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Notifier delivers (or enqueues for delivery) a single outbound message.
// Implementations are expected to be best-effort: a returned error marks that
// recipient failed, it does not abort the caller.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookEnvelope is the fixed payload shape for outbound webhook calls
type WebhookEnvelope struct {
	Event      string         `json:"event"`
	InstanceID int64          `json:"instance_id"`
	TemplateID int64          `json:"template_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// WebhookSender performs a signed outbound call to a configured URL.
// A non-2xx response is returned as an error.
type WebhookSender interface {
	Call(ctx context.Context, url string, envelope WebhookEnvelope) error
}

// TaskKind identifies a queued background task and selects its retry budget
type TaskKind string

const (
	TaskNotifyEmail     TaskKind = "notify_email"
	TaskWebhookDelivery TaskKind = "webhook_delivery"
	TaskReportExport    TaskKind = "report_export"
)

// TaskQueue enqueues a background task for at-least-once execution with a
// bounded, kind-specific retry budget
type TaskQueue interface {
	Enqueue(ctx context.Context, kind TaskKind, payload map[string]any) error
}
