package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised after a transition commits
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	RFQID         int64                  `json:"rfq_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a new domain event with a fresh ID and correlation ID
func NewEvent(eventType Type, rfqID int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, rfqID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, rfqID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		RFQID:         rfqID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with an added payload key
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	copied := *e
	copied.Payload = newPayload
	return &copied
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
