package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds NATS connection and stream settings
type JetStreamConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration

	// demo lifecycle stream written by this gateway
	DemoStream        string
	DemoSubjectPrefix string

	// auth service stream read by this gateway
	AuthStream        string
	AuthConsumerName  string
	AuthSubjectFilter string
	MaxDeliver        int
	AckWait           time.Duration
	MaxAckPending     int
}

// DefaultJetStreamConfig returns default JetStream configuration
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:               nats.DefaultURL,
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
		DemoStream:        "DEMO_EVENTS",
		DemoSubjectPrefix: "eduhub.demo",
		AuthStream:        "AUTH_EVENTS",
		AuthConsumerName:  "eduhub-gateway",
		AuthSubjectFilter: "auth.events.>",
		MaxDeliver:        5,
		AckWait:           30 * time.Second,
		MaxAckPending:     100,
	}
}

// Connect opens a NATS connection with reconnect logging and a JetStream context
func Connect(cfg JetStreamConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.Name("eduhub-gateway"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// JetStreamPublisher writes demo lifecycle envelopes to a JetStream stream
type JetStreamPublisher struct {
	js            jetstream.JetStream
	subjectPrefix string
}

// NewJetStreamPublisher makes sure the demo stream exists and returns a publisher for it
func NewJetStreamPublisher(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.DemoStream,
		Description: "EduHub demo session lifecycle",
		Subjects:    []string{cfg.DemoSubjectPrefix + ".>"},
		MaxAge:      24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.DemoStream, err)
	}

	log.Info().
		Str("stream", cfg.DemoStream).
		Str("subjects", cfg.DemoSubjectPrefix+".>").
		Msg("demo event stream ready")

	return &JetStreamPublisher{js: js, subjectPrefix: cfg.DemoSubjectPrefix}, nil
}

// Subject returns the subject an event type is published on
func (p *JetStreamPublisher) Subject(eventType EventType) string {
	return fmt.Sprintf("%s.%s", p.subjectPrefix, eventType)
}

func (p *JetStreamPublisher) Publish(ctx context.Context, env Envelope) error {
	data, err := marshalEnvelope(env)
	if err != nil {
		return err
	}

	ack, err := p.js.Publish(ctx, p.Subject(env.EventType), data, jetstream.WithMsgID(env.EventID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.EventType, err)
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", string(env.EventType)).
		Str("session_id", env.SessionID).
		Uint64("seq", ack.Sequence).
		Msg("published demo event")
	return nil
}
