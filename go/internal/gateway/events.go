package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/eduhub/go/internal/display"
)

// SessionEvent is the envelope for everything pushed to a browser socket
type SessionEvent struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Session the socket belongs to
	Type      EventType       `json:"type"`       // Event type
	Timestamp time.Time       `json:"timestamp"`  // Event creation time
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType represents the type of socket event
type EventType string

const (
	EventTypeTimerTick    EventType = "TimerTick"
	EventTypeTimerCleared EventType = "TimerCleared"
	EventTypeNavigate     EventType = "Navigate"
)

// TimerTickPayload carries one rendered countdown frame
type TimerTickPayload = display.Frame

// NavigatePayload tells the client to leave the current view
type NavigatePayload struct {
	Route string `json:"route"`
}

// NewSessionEvent builds an event with a fresh ID
func NewSessionEvent(sessionID string, eventType EventType, payload interface{}) (*SessionEvent, error) {
	event := &SessionEvent{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: time.Now(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		event.Data = data
	}
	return event, nil
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *SessionEvent) (interface{}, error) {
	switch event.Type {
	case EventTypeTimerTick:
		var payload TimerTickPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeNavigate:
		var payload NavigatePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil
	}
}
