package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/gateway"
	"github.com/mcdev12/eduhub/go/internal/ledger"
	"github.com/mcdev12/eduhub/go/internal/models"
	"github.com/stretchr/testify/assert"
)

type endedStore struct {
	mu    sync.Mutex
	ended map[string]string
}

func (s *endedStore) RecordStarted(ctx context.Context, sessionID, role string, startedAt time.Time) error {
	return nil
}

func (s *endedStore) RecordEnded(ctx context.Context, sessionID, reason string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[sessionID] = reason
	return nil
}

func (s *endedStore) snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.ended))
	for k, v := range s.ended {
		out[k] = v
	}
	return out
}

func TestShutdownRecordsEndOfRunningDemos(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registry := demo.NewRegistry(demo.DefaultConfig(), clock, nil)
	store := &endedStore{ended: make(map[string]string)}
	recorder := ledger.NewRecorder(store, clock, 16)
	registry.Observe(recorder.Observe)

	services := &Services{
		Registry: registry,
		Gateway:  gateway.NewService(gateway.DefaultConfig(), registry, nil),
		Recorder: recorder,
	}
	services.Start()

	registry.Start(&models.Session{ID: "a", Role: "student", IsDemo: true})
	registry.Start(&models.Session{ID: "b", Role: "student", IsDemo: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	services.Shutdown(ctx)

	assert.Equal(t, map[string]string{
		"a": demo.ReasonShutdown,
		"b": demo.ReasonShutdown,
	}, store.snapshot())
	assert.Equal(t, 0, registry.Active())
}
