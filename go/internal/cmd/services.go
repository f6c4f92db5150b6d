package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/auth"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/events"
	"github.com/mcdev12/eduhub/go/internal/gateway"
	"github.com/mcdev12/eduhub/go/internal/ledger"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Registry *demo.Registry
	Gateway  *gateway.Service

	// optional, nil when their backing service is not configured
	Relay    *events.Relay
	Consumer *events.SessionConsumer
	Recorder *ledger.Recorder

	nc     *nats.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func setupServices(ctx context.Context, config *Config, pool *pgxpool.Pool) (*Services, error) {
	// Wire up dependency injection chain
	// Auth client → Registry → Observers → Gateway
	clock := clockwork.NewRealClock()

	authClient := auth.NewClient(getEnv("AUTH_SERVICE_URL", "http://localhost:8081"))
	registry := demo.NewRegistry(config.Demo, clock, authClient.SessionTerminator)

	services := &Services{
		Registry: registry,
		Gateway:  gateway.NewService(config.Gateway, registry, authClient),
	}

	if natsURL := getEnv("NATS_URL", ""); natsURL != "" {
		if err := services.setupEvents(ctx, natsURL, clock); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("NATS_URL not set, lifecycle events disabled")
	}

	if pool != nil {
		services.Recorder = ledger.NewRecorder(ledger.NewRepository(pool), clock, 256)
		registry.Observe(services.Recorder.Observe)
	}

	return services, nil
}

func (s *Services) setupEvents(ctx context.Context, url string, clock clockwork.Clock) error {
	jsConfig := events.DefaultJetStreamConfig()
	jsConfig.URL = url

	nc, js, err := events.Connect(jsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.nc = nc

	publisher, err := events.NewJetStreamPublisher(ctx, js, jsConfig)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	s.Relay = events.NewRelay(publisher, clock, 256)
	s.Registry.Observe(s.Relay.Observe)

	// The auth stream is owned by the auth service and may not exist yet
	consumer, err := events.NewSessionConsumer(ctx, js, s.Registry, jsConfig)
	if err != nil {
		log.Warn().Err(err).Msg("auth session consumer unavailable, external logouts will not stop countdowns")
		return nil
	}
	s.Consumer = consumer
	return nil
}

// Start launches every background loop. They run until Shutdown.
func (s *Services) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.spawn(func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("demo gateway failed")
		}
	})
	if s.Relay != nil {
		s.spawn(func() { s.Relay.Run(ctx) })
	}
	if s.Recorder != nil {
		s.spawn(func() { s.Recorder.Run(ctx) })
	}
	if s.Consumer != nil {
		s.spawn(func() {
			if err := s.Consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("auth session consumer failed")
			}
		})
	}
}

func (s *Services) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Shutdown stops every countdown while the relay and ledger are still
// running, then stops the loops and waits for them to flush their queues.
func (s *Services) Shutdown(ctx context.Context) {
	s.Registry.StopAll(demo.ReasonShutdown)

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("background loops did not stop in time")
	}

	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
	}
}
