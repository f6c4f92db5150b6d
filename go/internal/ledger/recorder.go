package ledger

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/rs/zerolog/log"
)

// Store is what the recorder writes to
type Store interface {
	RecordStarted(ctx context.Context, sessionID, role string, startedAt time.Time) error
	RecordEnded(ctx context.Context, sessionID, reason string, endedAt time.Time) error
}

type record struct {
	sessionID string
	role      string
	reason    string
	at        time.Time
	started   bool
}

// Recorder writes start and end transitions to the store from its own goroutine
type Recorder struct {
	store   Store
	clock   clockwork.Clock
	queue   chan record
	timeout time.Duration
}

// NewRecorder creates a recorder with a bounded queue
func NewRecorder(store Store, clock clockwork.Clock, buffer int) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{
		store:   store,
		clock:   clock,
		queue:   make(chan record, buffer),
		timeout: 5 * time.Second,
	}
}

// Observe is a demo.Observer
func (r *Recorder) Observe(t demo.Transition) {
	var rec record
	switch {
	case t.From == demo.PhaseInactive && t.To == demo.PhaseRunning:
		rec = record{sessionID: t.SessionID, role: t.Role, started: true, at: r.clock.Now()}
		if t.Snapshot.StartedAt != nil {
			rec.at = *t.Snapshot.StartedAt
		}
	case t.To == demo.PhaseInactive:
		rec = record{sessionID: t.SessionID, reason: t.Reason, at: r.clock.Now()}
	default:
		return
	}

	select {
	case r.queue <- rec:
	default:
		log.Warn().Str("session_id", t.SessionID).Msg("ledger queue full, dropping record")
	}
}

// Run writes queued records until ctx is cancelled, then writes whatever is
// still queued before returning.
func (r *Recorder) Run(ctx context.Context) error {
	log.Info().Msg("demo ledger recorder started")

	for {
		select {
		case <-ctx.Done():
			r.drain()
			log.Info().Msg("demo ledger recorder shutting down")
			return nil
		case rec := <-r.queue:
			r.write(ctx, rec)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case rec := <-r.queue:
			r.write(context.Background(), rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec record) {
	writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var err error
	if rec.started {
		err = r.store.RecordStarted(writeCtx, rec.sessionID, rec.role, rec.at)
	} else {
		err = r.store.RecordEnded(writeCtx, rec.sessionID, rec.reason, rec.at)
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", rec.sessionID).Msg("ledger write failed")
	}
}
