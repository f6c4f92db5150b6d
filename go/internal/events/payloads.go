package events

import (
	"encoding/json"
	"time"
)

// EventType names a demo lifecycle event
type EventType string

const (
	EventTypeDemoStarted  EventType = "DemoStarted"
	EventTypeDemoExpiring EventType = "DemoExpiring"
	EventTypeDemoExpired  EventType = "DemoExpired"
	EventTypeDemoStopped  EventType = "DemoStopped"

	// published by the auth service
	EventTypeSessionEnded EventType = "SessionEnded"
)

// Envelope is the JSON wrapper every event travels in
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType EventType       `json:"eventType"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// DemoStartedPayload is sent when a countdown begins
type DemoStartedPayload struct {
	Role             string    `json:"role"`
	SecondsRemaining int       `json:"seconds_remaining"`
	StartedAt        time.Time `json:"started_at"`
}

// DemoExpiringPayload is sent when a countdown enters its expiring window
type DemoExpiringPayload struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

// DemoExpiredPayload is sent when a countdown reaches zero
type DemoExpiredPayload struct {
	ExpiredAt time.Time `json:"expired_at"`
}

// DemoStoppedPayload is sent when the session returns to inactive
type DemoStoppedPayload struct {
	Reason    string    `json:"reason"`
	StoppedAt time.Time `json:"stopped_at"`
}

// SessionEndedPayload is what the auth service sends when it ends a session itself
type SessionEndedPayload struct {
	Reason  string    `json:"reason"`
	EndedAt time.Time `json:"ended_at"`
}
