package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
	"github.com/formdesk/flowengine/internal/infrastructure/queue"
	"go.uber.org/zap"
)

// Signature headers sent with every outbound call. Receivers recompute
// HMAC-SHA256(secret, timestamp + "." + body) and compare.
const (
	HeaderSignature = "X-Flowengine-Signature"
	HeaderTimestamp = "X-Flowengine-Timestamp"
	HeaderEvent     = "X-Flowengine-Event"
)

// Client performs signed outbound webhook calls
type Client struct {
	httpClient *http.Client
	secret     string
	logger     *zap.Logger
}

// NewClient creates a webhook client. An empty secret disables signing.
func NewClient(timeout time.Duration, secret string, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		secret:     secret,
		logger:     logger,
	}
}

// Call posts the envelope to the URL. Any non-2xx response is an error.
func (c *Client) Call(ctx context.Context, url string, envelope port.WebhookEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal webhook envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, envelope.Event)

	if c.secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, Sign(c.secret, ts, body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Webhook call failed",
			zap.String("url", url),
			zap.String("event", envelope.Event),
			zap.Error(err))
		return fmt.Errorf("webhook call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("Webhook endpoint returned non-2xx",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Info("Webhook delivered",
		zap.String("url", url),
		zap.String("event", envelope.Event),
		zap.Int("status", resp.StatusCode))
	return nil
}

// Sign computes the hex HMAC-SHA256 over timestamp and body
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign, in constant time
func Verify(secret, timestamp, signature string, body []byte) bool {
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// QueueSender implements port.WebhookSender by enqueueing the call as a
// background task with its own retry budget
type QueueSender struct {
	queue  port.TaskQueue
	logger *zap.Logger
}

// NewQueueSender creates a queue-backed webhook sender
func NewQueueSender(q port.TaskQueue, logger *zap.Logger) *QueueSender {
	return &QueueSender{
		queue:  q,
		logger: logger,
	}
}

// Call enqueues the delivery
func (s *QueueSender) Call(ctx context.Context, url string, envelope port.WebhookEnvelope) error {
	payload := map[string]any{
		"url":         url,
		"event":       envelope.Event,
		"instance_id": envelope.InstanceID,
		"template_id": envelope.TemplateID,
		"payload":     envelope.Payload,
		"timestamp":   envelope.Timestamp.Format(time.RFC3339),
	}
	if err := s.queue.Enqueue(ctx, port.TaskWebhookDelivery, payload); err != nil {
		return fmt.Errorf("enqueue webhook delivery: %w", err)
	}
	return nil
}

// TaskHandler adapts the client into a queue handler for webhook_delivery
// tasks
func TaskHandler(client *Client) queue.HandlerFunc {
	return func(ctx context.Context, payload map[string]any) error {
		url, _ := payload["url"].(string)
		if url == "" {
			return fmt.Errorf("webhook task has no url")
		}

		envelope := port.WebhookEnvelope{
			Event: stringValue(payload, "event"),
		}
		envelope.InstanceID = int64Value(payload, "instance_id")
		envelope.TemplateID = int64Value(payload, "template_id")
		if p, ok := payload["payload"].(map[string]any); ok {
			envelope.Payload = p
		}
		if raw := stringValue(payload, "timestamp"); raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				envelope.Timestamp = ts
			}
		}

		return client.Call(ctx, url, envelope)
	}
}

func stringValue(payload map[string]any, key string) string {
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

func int64Value(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Verify interface compliance
var (
	_ port.WebhookSender = (*Client)(nil)
	_ port.WebhookSender = (*QueueSender)(nil)
)
