package demo

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Phase is the position of a session in the demo countdown state machine
type Phase string

const (
	PhaseInactive Phase = "inactive"
	PhaseRunning  Phase = "running"
	PhaseExpiring Phase = "expiring"
	PhaseExpired  Phase = "expired"
)

// Snapshot is a point-in-time copy of a session's demo state
type Snapshot struct {
	SessionID        string     `json:"session_id"`
	IsDemo           bool       `json:"is_demo"`
	SecondsRemaining int        `json:"seconds_remaining"`
	IsExpiring       bool       `json:"is_expiring"`
	Phase            Phase      `json:"phase"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}

// Config holds the countdown settings shared by every holder
type Config struct {
	Duration       time.Duration `yaml:"duration"`
	ExpiringWindow time.Duration `yaml:"expiring_window"`
	LogoutTimeout  time.Duration `yaml:"logout_timeout"`
}

// DefaultConfig returns the ten minute demo with a one minute expiring window
func DefaultConfig() Config {
	return Config{
		Duration:       600 * time.Second,
		ExpiringWindow: 60 * time.Second,
		LogoutTimeout:  10 * time.Second,
	}
}

func (c Config) totalSeconds() int {
	return int(c.Duration / time.Second)
}

func (c Config) windowSeconds() int {
	return int(c.ExpiringWindow / time.Second)
}

// Terminator ends the remote session when a countdown runs out
type Terminator interface {
	Logout(ctx context.Context) error
}

// TerminatorFunc adapts a function to the Terminator interface
type TerminatorFunc func(ctx context.Context) error

func (f TerminatorFunc) Logout(ctx context.Context) error {
	return f(ctx)
}

type countdown struct {
	gen    uint64
	ticker clockwork.Ticker
	stop   chan struct{}
}

// Holder owns the demo state of one session and the single countdown that
// advances it. Subscribers are called in mutation order and must not call
// StartDemo or StopDemo from inside the callback.
type Holder struct {
	sessionID  string
	cfg        Config
	clock      clockwork.Clock
	terminator Terminator

	// dispatchMu serializes a mutation together with its delivery
	dispatchMu sync.Mutex

	mu      sync.Mutex
	state   Snapshot
	run     *countdown
	gen     uint64
	subs    map[uint64]func(Snapshot)
	nextSub uint64
}

// NewHolder creates an inactive holder for a session
func NewHolder(sessionID string, cfg Config, clock clockwork.Clock, terminator Terminator) *Holder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	h := &Holder{
		sessionID:  sessionID,
		cfg:        cfg,
		clock:      clock,
		terminator: terminator,
		subs:       make(map[uint64]func(Snapshot)),
	}
	h.state = h.inactive()
	return h
}

// SessionID returns the session this holder belongs to
func (h *Holder) SessionID() string {
	return h.sessionID
}

// StartDemo begins the countdown. It does nothing while a countdown is already running.
func (h *Holder) StartDemo() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	if h.run != nil {
		h.mu.Unlock()
		log.Debug().Str("session_id", h.sessionID).Msg("demo countdown already running")
		return
	}

	h.gen++
	run := &countdown{
		gen:    h.gen,
		ticker: h.clock.NewTicker(time.Second),
		stop:   make(chan struct{}),
	}
	h.run = run

	startedAt := h.clock.Now()
	seconds := h.cfg.totalSeconds()
	h.state = Snapshot{
		SessionID:        h.sessionID,
		IsDemo:           true,
		SecondsRemaining: seconds,
		Phase:            PhaseRunning,
		StartedAt:        &startedAt,
	}
	if seconds <= h.cfg.windowSeconds() {
		h.state.IsExpiring = true
		h.state.Phase = PhaseExpiring
	}
	snap, subs := h.state, h.subscribers()
	h.mu.Unlock()

	go h.loop(run)

	log.Info().
		Str("session_id", h.sessionID).
		Int("seconds", seconds).
		Msg("demo countdown started")

	deliver(subs, snap)
}

// StopDemo cancels the countdown and resets the session to inactive.
// The ticker is stopped before state is cleared, so a late tick is discarded.
func (h *Holder) StopDemo() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	if run := h.run; run != nil {
		run.ticker.Stop()
		close(run.stop)
		h.run = nil
	}
	wasDemo := h.state.IsDemo
	h.state = h.inactive()
	snap, subs := h.state, h.subscribers()
	h.mu.Unlock()

	if !wasDemo {
		return
	}

	log.Info().Str("session_id", h.sessionID).Msg("demo countdown stopped")
	deliver(subs, snap)
}

// Snapshot returns the state as of the latest completed tick
func (h *Holder) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Running reports whether a countdown is currently active
func (h *Holder) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.run != nil
}

// Subscribe registers fn and immediately replays the current snapshot to it.
// The returned function unsubscribes and is safe to call more than once.
func (h *Holder) Subscribe(fn func(Snapshot)) func() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	snap := h.state
	h.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *Holder) loop(run *countdown) {
	for {
		select {
		case <-run.stop:
			return
		case <-run.ticker.Chan():
			if h.tick(run) {
				h.expire(run.gen)
				return
			}
		}
	}
}

// tick advances the countdown by one second and reports whether it reached zero
func (h *Holder) tick(run *countdown) bool {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	if h.run != run {
		// stopped or replaced while this tick was waiting
		h.mu.Unlock()
		return false
	}

	if h.state.SecondsRemaining > 0 {
		h.state.SecondsRemaining--
	}
	if !h.state.IsExpiring && h.state.SecondsRemaining <= h.cfg.windowSeconds() {
		h.state.IsExpiring = true
		h.state.Phase = PhaseExpiring
	}

	expired := h.state.SecondsRemaining == 0
	if expired {
		run.ticker.Stop()
		h.run = nil
		h.state.Phase = PhaseExpired
	}
	snap, subs := h.state, h.subscribers()
	h.mu.Unlock()

	if snap.IsExpiring && snap.SecondsRemaining == h.cfg.windowSeconds() {
		log.Info().Str("session_id", h.sessionID).Msg("demo session entering expiring window")
	}

	deliver(subs, snap)
	return expired
}

// expire runs the termination collaborator once and then ends the session
// locally whether or not the remote logout succeeded.
func (h *Holder) expire(gen uint64) {
	log.Info().Str("session_id", h.sessionID).Msg("demo countdown expired, logging out")

	if h.terminator != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.LogoutTimeout)
		if err := h.terminator.Logout(ctx); err != nil {
			log.Error().
				Err(err).
				Str("session_id", h.sessionID).
				Msg("logout after demo expiry failed")
		}
		cancel()
	}

	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	h.mu.Lock()
	if h.gen != gen || h.run != nil || !h.state.IsDemo {
		// a new countdown started or the session was already reset
		h.mu.Unlock()
		return
	}
	h.state = h.inactive()
	snap, subs := h.state, h.subscribers()
	h.mu.Unlock()

	deliver(subs, snap)
}

func (h *Holder) inactive() Snapshot {
	return Snapshot{
		SessionID:        h.sessionID,
		SecondsRemaining: h.cfg.totalSeconds(),
		Phase:            PhaseInactive,
	}
}

// subscribers must be called with h.mu held
func (h *Holder) subscribers() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	return subs
}

func deliver(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
