package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/eduhub/go/internal/display"
	"github.com/rs/zerolog/log"
)

// SourceFunc resolves the countdown source for a session ID
type SourceFunc func(sessionID string) display.Source

// WebSocketHandler attaches a countdown display to each browser socket
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	sources           SourceFunc
	route             string
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, sources SourceFunc, route string) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		sources:           sources,
		route:             route,
	}
}

// HandleDemoConnection handles GET /ws/demo?session_id=
func (h *WebSocketHandler) HandleDemoConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	// Upgrade writes its own error response on failure
	conn, err := h.connectionManager.UpgradeConnection(w, r, sessionID)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	surface := &socketSurface{manager: h.connectionManager, conn: conn}
	d := display.New(h.sources(sessionID), surface, surface, h.route)
	conn.OnClose(d.Close)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/demo", h.HandleDemoConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

// socketSurface renders countdown frames as socket events for one connection
type socketSurface struct {
	manager *ConnectionManager
	conn    *Connection
}

// Render drops a frame when the queue is full; the next tick replaces it
func (s *socketSurface) Render(frame display.Frame) error {
	event, err := NewSessionEvent(s.conn.SessionID, EventTypeTimerTick, TimerTickPayload(frame))
	if err != nil {
		return err
	}
	return s.manager.SendToConnection(s.conn, event)
}

func (s *socketSurface) Clear() error {
	return s.control(EventTypeTimerCleared, nil)
}

func (s *socketSurface) NavigateTo(route string) error {
	return s.control(EventTypeNavigate, NavigatePayload{Route: route})
}

func (s *socketSurface) control(eventType EventType, payload interface{}) error {
	event, err := NewSessionEvent(s.conn.SessionID, eventType, payload)
	if err != nil {
		return err
	}
	return s.manager.SendControlToConnection(s.conn, event)
}
