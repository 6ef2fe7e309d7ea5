package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys of status-change events
const (
	KeyOldStatus   = "old_status"
	KeyNewStatus   = "new_status"
	KeyActorID     = "actor_id"
	KeyAction      = "action"
	KeyComment     = "comment"
	KeySubmitterID = "submitter_id"
	KeyTitle       = "title"
	KeyAmount      = "amount"
)

// Event represents a domain event
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RequestID     string                 `json:"request_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, requestID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RequestID:     requestID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.NewString(),
	}
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, requestID string, payload map[string]interface{}, correlationID string) *Event {
	evt := NewEvent(eventType, requestID, payload)
	evt.CorrelationID = correlationID
	return evt
}

// StatusChange is the message emitted after every applied transition
type StatusChange struct {
	RequestID   string
	OldStatus   string // empty when the request was just created
	NewStatus   string
	ActorID     string
	Action      string
	Comment     string
	SubmitterID string
	Title       string
	Amount      string
}

// NewStatusChanged builds a status-change event; creation uses TypeRequestCreated
func NewStatusChanged(c StatusChange) *Event {
	eventType := TypeStatusChanged
	if c.OldStatus == "" {
		eventType = TypeRequestCreated
	}
	return NewEvent(eventType, c.RequestID, map[string]interface{}{
		KeyOldStatus:   c.OldStatus,
		KeyNewStatus:   c.NewStatus,
		KeyActorID:     c.ActorID,
		KeyAction:      c.Action,
		KeyComment:     c.Comment,
		KeySubmitterID: c.SubmitterID,
		KeyTitle:       c.Title,
		KeyAmount:      c.Amount,
	})
}

// StatusChange reads the payload back into a StatusChange
func (e *Event) StatusChange() StatusChange {
	return StatusChange{
		RequestID:   e.RequestID,
		OldStatus:   e.GetPayloadString(KeyOldStatus),
		NewStatus:   e.GetPayloadString(KeyNewStatus),
		ActorID:     e.GetPayloadString(KeyActorID),
		Action:      e.GetPayloadString(KeyAction),
		Comment:     e.GetPayloadString(KeyComment),
		SubmitterID: e.GetPayloadString(KeySubmitterID),
		Title:       e.GetPayloadString(KeyTitle),
		Amount:      e.GetPayloadString(KeyAmount),
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	return &Event{
		ID:            e.ID,
		Type:          e.Type,
		RequestID:     e.RequestID,
		Payload:       newPayload,
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
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

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
