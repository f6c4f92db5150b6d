package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/rs/zerolog/log"
)

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Relay turns registry transitions into published events off the countdown path
type Relay struct {
	publisher Publisher
	clock     clockwork.Clock
	queue     chan Envelope
	timeout   time.Duration
}

// NewRelay creates a relay with a bounded queue
func NewRelay(publisher Publisher, clock clockwork.Clock, buffer int) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		publisher: publisher,
		clock:     clock,
		queue:     make(chan Envelope, buffer),
		timeout:   5 * time.Second,
	}
}

// Observe is a demo.Observer. It never blocks; events are dropped when the queue is full.
func (r *Relay) Observe(t demo.Transition) {
	env, ok, err := BuildEnvelope(t, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("session_id", t.SessionID).Msg("failed to build demo event")
		return
	}
	if !ok {
		return
	}

	select {
	case r.queue <- env:
	default:
		log.Warn().
			Str("session_id", env.SessionID).
			Str("event_type", string(env.EventType)).
			Msg("event queue full, dropping demo event")
	}
}

// Run publishes queued events until ctx is cancelled, then publishes whatever
// is still queued before returning.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().Msg("demo event relay started")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			log.Info().Msg("demo event relay shutting down")
			return nil
		case env := <-r.queue:
			r.publish(ctx, env)
		}
	}
}

func (r *Relay) drain() {
	for {
		select {
		case env := <-r.queue:
			r.publish(context.Background(), env)
		default:
			return
		}
	}
}

func (r *Relay) publish(ctx context.Context, env Envelope) {
	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.EventID).
			Str("session_id", env.SessionID).
			Msg("failed to publish demo event")
	}
}

// BuildEnvelope maps a transition to its lifecycle event. ok is false for
// transitions that carry no event.
func BuildEnvelope(t demo.Transition, now time.Time) (Envelope, bool, error) {
	var (
		eventType EventType
		payload   interface{}
	)

	switch t.To {
	case demo.PhaseRunning:
		if t.From != demo.PhaseInactive {
			return Envelope{}, false, nil
		}
		startedAt := now
		if t.Snapshot.StartedAt != nil {
			startedAt = *t.Snapshot.StartedAt
		}
		eventType = EventTypeDemoStarted
		payload = DemoStartedPayload{
			Role:             t.Role,
			SecondsRemaining: t.Snapshot.SecondsRemaining,
			StartedAt:        startedAt,
		}
	case demo.PhaseExpiring:
		eventType = EventTypeDemoExpiring
		payload = DemoExpiringPayload{SecondsRemaining: t.Snapshot.SecondsRemaining}
	case demo.PhaseExpired:
		eventType = EventTypeDemoExpired
		payload = DemoExpiredPayload{ExpiredAt: now}
	case demo.PhaseInactive:
		eventType = EventTypeDemoStopped
		payload = DemoStoppedPayload{Reason: t.Reason, StoppedAt: now}
	default:
		return Envelope{}, false, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, false, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		SessionID: t.SessionID,
		Timestamp: now,
		Payload:   data,
	}, true, nil
}

func marshalEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}
