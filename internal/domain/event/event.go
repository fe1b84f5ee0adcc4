package event

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Event represents a lifecycle event raised on a form instance
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	TenantID      string         `json:"tenant_id"`
	InstanceID    int64          `json:"instance_id"`
	TemplateID    int64          `json:"template_id"`
	Actor         string         `json:"actor,omitempty"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// New creates a new lifecycle event with auto-generated ID and timestamp
func New(eventType Type, tenantID string, instanceID, templateID int64, payload map[string]any) *Event {
	return &Event{
		ID:            generateID(),
		Type:          eventType,
		TenantID:      tenantID,
		InstanceID:    instanceID,
		TemplateID:    templateID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: generateID(),
	}
}

// NewWithCorrelation creates an event linked to a correlation chain
func NewWithCorrelation(eventType Type, tenantID string, instanceID, templateID int64, payload map[string]any, correlationID string) *Event {
	evt := New(eventType, tenantID, instanceID, templateID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// WithActor returns a copy of the event carrying the acting user
func (e *Event) WithActor(actor string) *Event {
	clone := *e
	clone.Actor = actor
	return &clone
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value any) *Event {
	newPayload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	clone := *e
	clone.Payload = newPayload
	return &clone
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadFloat retrieves a float64 value from the payload
func (e *Event) GetPayloadFloat(key string) float64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0.0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// generateID creates a unique ID using timestamp and random bytes
func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b))
}
