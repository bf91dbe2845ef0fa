package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a moderation domain event. Events are produced after a
// transition's transaction commits; handlers (notification, search) are
// best-effort consumers that can never affect the committed transition.
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	TargetKind    string         `json:"target_kind"`
	TargetID      string         `json:"target_id"`
	ProviderID    string         `json:"provider_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, targetKind, targetID, providerID string, payload map[string]any) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		TargetKind:    targetKind,
		TargetID:      targetID,
		ProviderID:    providerID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: uuid.NewString(),
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, targetKind, targetID, providerID string, payload map[string]any, correlationID string) *Event {
	e := NewEvent(eventType, targetKind, targetID, providerID, payload)
	e.CorrelationID = correlationID
	return e
}

// WithPayload returns a new Event with an added payload key-value pair
// (immutable operation)
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

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// GetPayloadStrings retrieves a string-slice value from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	val, ok := e.Payload[key]
	if !ok {
		return nil
	}
	switch v := val.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
