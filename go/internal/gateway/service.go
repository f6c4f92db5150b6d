package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/display"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Service is the browser-facing gateway: REST session routes plus countdown sockets
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	limiter           *RateLimiter
	visitorIdle       time.Duration
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig `yaml:"-"`
	LandingRoute     string           `yaml:"landing_route"`
	DemoRateLimit    rate.Limit       `yaml:"demo_rate_limit"`
	DemoBurst        int              `yaml:"demo_burst"`
	// TrustedProxies lists CIDRs or IPs whose X-Forwarded-For header is honored
	TrustedProxies []string      `yaml:"trusted_proxies"`
	VisitorIdle    time.Duration `yaml:"visitor_idle"`
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		LandingRoute:     display.DefaultRoute,
		DemoRateLimit:    rate.Limit(1),
		DemoBurst:        5,
		VisitorIdle:      10 * time.Minute,
	}
}

// NewService creates a new gateway service
func NewService(config Config, registry *demo.Registry, authenticator Authenticator) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	sources := func(sessionID string) display.Source {
		return registry.Source(sessionID)
	}
	wsHandler := NewWebSocketHandler(connectionManager, sources, config.LandingRoute)

	var limiter *RateLimiter
	if config.DemoRateLimit > 0 {
		limiter = NewRateLimiter(config.DemoRateLimit, config.DemoBurst, clockwork.NewRealClock(), config.TrustedProxies)
	}
	stateHandler := NewStateHandler(authenticator, registry, limiter)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
		stateHandler:      stateHandler,
		limiter:           limiter,
		visitorIdle:       config.VisitorIdle,
	}
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting demo gateway service")
	if s.limiter != nil && s.visitorIdle > 0 {
		go s.limiter.Run(ctx, s.visitorIdle)
	}
	s.connectionManager.Start(ctx)
	log.Info().Msg("demo gateway service stopped")
	return nil
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("demo gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "demo_gateway"
	stats["status"] = "running"
	return stats
}
