package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/infrastructure/queue"
	"go.uber.org/zap"
)

// SMTPConfig holds outbound mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers messages over SMTP. One Send is one recipient; the
// caller decides what a partial failure across recipients means.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewSMTPNotifier creates an SMTP-backed notifier
func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		cfg:    cfg,
		logger: logger,
	}
}

// Send delivers one message
func (n *SMTPNotifier) Send(ctx context.Context, msg port.Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("message has no recipient")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, n.cfg.From, []string{msg.Recipient}, []byte(b.String())); err != nil {
		n.logger.Error("SMTP delivery failed",
			zap.String("recipient", msg.Recipient),
			zap.Error(err))
		return fmt.Errorf("smtp send to %s: %w", msg.Recipient, err)
	}

	n.logger.Info("Notification delivered",
		zap.String("recipient", msg.Recipient),
		zap.String("tenant_id", msg.TenantID))
	return nil
}

// LogNotifier records messages in the log instead of delivering them. Used
// when no mail server is configured, typically in development.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the message
func (n *LogNotifier) Send(ctx context.Context, msg port.Message) error {
	n.logger.Info("Notification (log only)",
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.String("tenant_id", msg.TenantID))
	return nil
}

// QueueNotifier implements port.Notifier by enqueueing delivery as a
// background task, so trigger dispatch never blocks on a mail server
type QueueNotifier struct {
	queue  port.TaskQueue
	logger *zap.Logger
}

// NewQueueNotifier creates a queue-backed notifier
func NewQueueNotifier(q port.TaskQueue, logger *zap.Logger) *QueueNotifier {
	return &QueueNotifier{
		queue:  q,
		logger: logger,
	}
}

// Send enqueues the message for at-least-once delivery
func (n *QueueNotifier) Send(ctx context.Context, msg port.Message) error {
	payload := map[string]any{
		"tenant_id": msg.TenantID,
		"recipient": msg.Recipient,
		"subject":   msg.Subject,
		"body":      msg.Body,
	}
	if err := n.queue.Enqueue(ctx, port.TaskNotifyEmail, payload); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// TaskHandler adapts a delivering notifier into a queue handler for
// notify_email tasks
func TaskHandler(delivery port.Notifier) queue.HandlerFunc {
	return func(ctx context.Context, payload map[string]any) error {
		msg := port.Message{
			TenantID:  payloadString(payload, "tenant_id"),
			Recipient: payloadString(payload, "recipient"),
			Subject:   payloadString(payload, "subject"),
			Body:      payloadString(payload, "body"),
		}
		return delivery.Send(ctx, msg)
	}
}

func payloadString(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

// Verify interface compliance
var (
	_ port.Notifier = (*SMTPNotifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
	_ port.Notifier = (*QueueNotifier)(nil)
)
