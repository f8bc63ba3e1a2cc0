package eventstore

import "time"

// Event represents a recorded pipeline event.
type Event interface {
	ID() int64
	// RequestID correlates the events of one resolution.
	RequestID() string
	Type() string
	Timestamp() time.Time
	Payload() []byte
	Metadata() map[string]string
}

// BaseEvent provides a default implementation of Event.
type BaseEvent struct {
	EventID        int64             `json:"id"`
	EventRequestID string            `json:"request_id"`
	EventType      string            `json:"type"`
	EventTimestamp time.Time         `json:"timestamp"`
	EventPayload   []byte            `json:"payload"`
	EventMetadata  map[string]string `json:"metadata,omitempty"`
}

func (e *BaseEvent) ID() int64                   { return e.EventID }
func (e *BaseEvent) RequestID() string           { return e.EventRequestID }
func (e *BaseEvent) Type() string                { return e.EventType }
func (e *BaseEvent) Timestamp() time.Time        { return e.EventTimestamp }
func (e *BaseEvent) Payload() []byte             { return e.EventPayload }
func (e *BaseEvent) Metadata() map[string]string { return e.EventMetadata }
