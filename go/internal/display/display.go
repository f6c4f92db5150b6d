package display

import (
	"fmt"
	"sync"

	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/rs/zerolog/log"
)

// DefaultRoute is where an expired demo user is sent
const DefaultRoute = "/signup"

// Source is anything a display can subscribe to for demo snapshots
type Source interface {
	Subscribe(fn func(demo.Snapshot)) (unsubscribe func())
}

// Frame is one rendered countdown value
type Frame struct {
	Text             string `json:"text"`
	SecondsRemaining int    `json:"seconds_remaining"`
	Expiring         bool   `json:"expiring"`
}

// Renderer draws frames on some surface
type Renderer interface {
	Render(frame Frame) error
	Clear() error
}

// Navigator moves the user to another route
type Navigator interface {
	NavigateTo(route string) error
}

// NavigatorFunc adapts a function to the Navigator interface
type NavigatorFunc func(route string) error

func (f NavigatorFunc) NavigateTo(route string) error {
	return f(route)
}

// Display renders a session's countdown and sends the user away once it expires.
// It only reads demo state; it never starts or stops a countdown.
type Display struct {
	renderer Renderer
	nav      Navigator
	route    string

	mu        sync.Mutex
	closed    bool
	visible   bool
	navigated bool

	unsubscribe func()
}

// New attaches a display to src and renders the current state right away
func New(src Source, renderer Renderer, nav Navigator, route string) *Display {
	if route == "" {
		route = DefaultRoute
	}
	d := &Display{
		renderer: renderer,
		nav:      nav,
		route:    route,
	}
	unsubscribe := src.Subscribe(d.handle)

	d.mu.Lock()
	d.unsubscribe = unsubscribe
	d.mu.Unlock()
	return d
}

// Close detaches the display. A closed display never renders or navigates again.
func (d *Display) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	unsubscribe := d.unsubscribe
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Navigated reports whether the expiry navigation has fired for the current countdown
func (d *Display) Navigated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.navigated
}

func (d *Display) handle(s demo.Snapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if !s.IsDemo {
		if d.visible {
			if err := d.renderer.Clear(); err != nil {
				log.Warn().Err(err).Str("session_id", s.SessionID).Msg("failed to clear countdown")
			}
			d.visible = false
		}
		return
	}

	if s.SecondsRemaining > 0 {
		// a running countdown re-arms the expiry navigation
		d.navigated = false
	}

	frame := Frame{
		Text:             FormatClock(s.SecondsRemaining),
		SecondsRemaining: s.SecondsRemaining,
		Expiring:         s.IsExpiring,
	}
	if err := d.renderer.Render(frame); err != nil {
		log.Warn().Err(err).Str("session_id", s.SessionID).Msg("failed to render countdown")
	}
	d.visible = true

	if s.SecondsRemaining == 0 && !d.navigated {
		d.navigated = true
		log.Info().
			Str("session_id", s.SessionID).
			Str("route", d.route).
			Msg("demo expired, navigating")
		if err := d.nav.NavigateTo(d.route); err != nil {
			log.Error().Err(err).Str("session_id", s.SessionID).Msg("expiry navigation failed")
		}
	}
}

// FormatClock renders seconds as zero padded MM:SS
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
