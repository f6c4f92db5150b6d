package demo

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Stop reasons recorded on the DemoStopped transition
const (
	ReasonLogout       = "logout"
	ReasonExpired      = "expired"
	ReasonExternal     = "external"
	ReasonNonDemoLogin = "non_demo_login"
	ReasonShutdown     = "shutdown"
)

// Transition describes a phase change of one session's countdown
type Transition struct {
	SessionID string
	Role      string
	From      Phase
	To        Phase
	Snapshot  Snapshot
	Reason    string
}

// Observer is notified of every phase change across all sessions.
// It runs on the countdown path, so it must not block.
type Observer func(Transition)

// TerminatorFactory builds the logout collaborator for a session
type TerminatorFactory func(session *models.Session) Terminator

type entry struct {
	holder *Holder

	mu      sync.Mutex
	session *models.Session
	phase   Phase
	reason  string
}

func (e *entry) currentSession() *models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Registry keeps exactly one holder per session ID. A holder lives as long
// as the registry does and is restarted in place for later demos, so every
// subscriber of an ID keeps following the same countdown.
type Registry struct {
	cfg           Config
	clock         clockwork.Clock
	newTerminator TerminatorFactory

	mu        sync.Mutex
	entries   map[string]*entry
	observers []Observer
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config, clock clockwork.Clock, newTerminator TerminatorFactory) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		cfg:           cfg,
		clock:         clock,
		newTerminator: newTerminator,
		entries:       make(map[string]*entry),
	}
}

// Config returns the countdown settings used for new holders
func (r *Registry) Config() Config {
	return r.cfg
}

// Observe adds a registry-wide transition observer
func (r *Registry) Observe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Start records session as the current owner of its ID and starts the
// countdown on the ID's holder, creating the holder on first use.
func (r *Registry) Start(session *models.Session) *Holder {
	e := r.entryFor(session)

	e.mu.Lock()
	e.session = session
	e.reason = ""
	e.mu.Unlock()

	e.holder.StartDemo()
	return e.holder
}

// entryFor returns the entry for the session ID. A new entry is fully
// subscribed before it becomes visible to other callers.
func (r *Registry) entryFor(session *models.Session) *entry {
	r.mu.Lock()
	e, exists := r.entries[session.ID]
	r.mu.Unlock()
	if exists {
		return e
	}

	e = &entry{session: session, phase: PhaseInactive}
	e.holder = NewHolder(session.ID, r.cfg, r.clock, r.terminatorFor(e))
	unsubscribe := e.holder.Subscribe(func(s Snapshot) {
		r.handle(e, s)
	})

	r.mu.Lock()
	if current, raced := r.entries[session.ID]; raced {
		r.mu.Unlock()
		// another Start won; the unused holder never ran
		unsubscribe()
		return current
	}
	r.entries[session.ID] = e
	r.mu.Unlock()
	return e
}

// terminatorFor resolves the logout collaborator when the countdown expires,
// so a restarted holder logs out the session that started it last.
func (r *Registry) terminatorFor(e *entry) Terminator {
	return TerminatorFunc(func(ctx context.Context) error {
		if r.newTerminator == nil {
			return nil
		}
		terminator := r.newTerminator(e.currentSession())
		if terminator == nil {
			return nil
		}
		return terminator.Logout(ctx)
	})
}

// Stop ends the countdown for a session. Unknown sessions are ignored.
func (r *Registry) Stop(sessionID, reason string) {
	r.mu.Lock()
	e, exists := r.entries[sessionID]
	r.mu.Unlock()

	if !exists {
		return
	}

	e.mu.Lock()
	e.reason = reason
	e.mu.Unlock()

	e.holder.StopDemo()
}

// StopAll ends every countdown
func (r *Registry) StopAll(reason string) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Stop(id, reason)
	}
}

// Holder returns the holder for a session if one exists
func (r *Registry) Holder(sessionID string) (*Holder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[sessionID]
	if !ok {
		return nil, false
	}
	return e.holder, true
}

// Snapshot returns the session's state, or an inactive snapshot for unknown sessions
func (r *Registry) Snapshot(sessionID string) Snapshot {
	if h, ok := r.Holder(sessionID); ok {
		return h.Snapshot()
	}
	return Snapshot{
		SessionID:        sessionID,
		SecondsRemaining: r.cfg.totalSeconds(),
		Phase:            PhaseInactive,
	}
}

// Subscribe attaches fn to the session's holder. For unknown sessions fn
// receives a single inactive snapshot and the returned function is a no-op.
func (r *Registry) Subscribe(sessionID string, fn func(Snapshot)) func() {
	if h, ok := r.Holder(sessionID); ok {
		return h.Subscribe(fn)
	}
	fn(r.Snapshot(sessionID))
	return func() {}
}

// Source binds a session ID to the registry so it can be handed to a display
func (r *Registry) Source(sessionID string) *SessionSource {
	return &SessionSource{registry: r, sessionID: sessionID}
}

// Active returns the number of sessions with a running countdown
func (r *Registry) Active() int {
	r.mu.Lock()
	holders := make([]*Holder, 0, len(r.entries))
	for _, e := range r.entries {
		holders = append(holders, e.holder)
	}
	r.mu.Unlock()

	active := 0
	for _, h := range holders {
		if h.Snapshot().IsDemo {
			active++
		}
	}
	return active
}

func (r *Registry) handle(e *entry, s Snapshot) {
	e.mu.Lock()
	from := e.phase
	if from == s.Phase {
		e.mu.Unlock()
		return
	}
	e.phase = s.Phase
	session := e.session
	reason := ""
	if s.Phase == PhaseInactive {
		// an explicit stop wins over the expiry that was already under way
		reason = e.reason
		if reason == "" && from == PhaseExpired {
			reason = ReasonExpired
		}
		e.reason = ""
	}
	e.mu.Unlock()

	t := Transition{
		SessionID: session.ID,
		Role:      session.Role,
		From:      from,
		To:        s.Phase,
		Snapshot:  s,
		Reason:    reason,
	}

	log.Debug().
		Str("session_id", t.SessionID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("demo phase changed")

	r.mu.Lock()
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()
	for _, fn := range observers {
		fn(t)
	}
}

// SessionSource is a subscription handle for one session
type SessionSource struct {
	registry  *Registry
	sessionID string
}

// Subscribe implements the display source contract
func (s *SessionSource) Subscribe(fn func(Snapshot)) func() {
	return s.registry.Subscribe(s.sessionID, fn)
}
