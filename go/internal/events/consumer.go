package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// SessionStopper ends the local countdown of a session
type SessionStopper interface {
	Stop(sessionID, reason string)
}

// SessionConsumer reads auth service events and stops countdowns for sessions
// the auth service ended on its own
type SessionConsumer struct {
	js       jetstream.JetStream
	consumer jetstream.Consumer
	stopper  SessionStopper
	cfg      JetStreamConfig
}

// NewSessionConsumer creates the durable consumer on the auth stream
func NewSessionConsumer(ctx context.Context, js jetstream.JetStream, stopper SessionStopper, cfg JetStreamConfig) (*SessionConsumer, error) {
	sc := &SessionConsumer{
		js:      js,
		stopper: stopper,
		cfg:     cfg,
	}
	if err := sc.ensureConsumer(ctx); err != nil {
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return sc, nil
}

// ensureConsumer creates or gets the JetStream consumer
func (sc *SessionConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := sc.js.Stream(ctx, sc.cfg.AuthStream)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.Consumer(ctx, sc.cfg.AuthConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, jetstream.ConsumerConfig{
			Name:          sc.cfg.AuthConsumerName,
			Durable:       sc.cfg.AuthConsumerName,
			Description:   "EduHub gateway session end consumer",
			FilterSubject: sc.cfg.AuthSubjectFilter,
			DeliverPolicy: jetstream.DeliverNewPolicy,
			AckPolicy:     jetstream.AckExplicitPolicy,
			MaxDeliver:    sc.cfg.MaxDeliver,
			AckWait:       sc.cfg.AckWait,
			MaxAckPending: sc.cfg.MaxAckPending,
		})
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", sc.cfg.AuthConsumerName).
			Str("stream", sc.cfg.AuthStream).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", sc.cfg.AuthConsumerName).
			Str("stream", sc.cfg.AuthStream).
			Msg("using existing JetStream consumer")
	}

	sc.consumer = consumer
	return nil
}

// Start consumes until ctx is cancelled
func (sc *SessionConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", sc.cfg.AuthConsumerName).
		Str("stream", sc.cfg.AuthStream).
		Msg("starting session event consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := sc.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := sc.HandleMessage(msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// HandleMessage applies one auth service envelope
func (sc *SessionConsumer) HandleMessage(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	switch env.EventType {
	case EventTypeSessionEnded:
		if env.SessionID == "" {
			return fmt.Errorf("session ended event %s has no session id", env.EventID)
		}
		var payload SessionEndedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return fmt.Errorf("unmarshal SessionEnded payload: %w", err)
			}
		}

		log.Info().
			Str("event_id", env.EventID).
			Str("session_id", env.SessionID).
			Str("reason", payload.Reason).
			Msg("auth service ended session")
		sc.stopper.Stop(env.SessionID, demo.ReasonExternal)
		return nil

	default:
		log.Debug().
			Str("event_type", string(env.EventType)).
			Str("session_id", env.SessionID).
			Msg("unknown event type - ignoring")
		return nil
	}
}
