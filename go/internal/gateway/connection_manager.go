package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections for demo sessions
type ConnectionManager struct {
	// Connection pools organized by session ID
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a browser tab
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	hooksMu sync.Mutex
	closed  bool
	onClose []func()
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	BroadcastBuffer int
	// ControlTimeout bounds how long a control event waits for queue space
	ControlTimeout time.Duration
	CheckOrigin    func(r *http.Request) bool
}

// BroadcastMessage represents a message to deliver to connections
type BroadcastMessage struct {
	SessionID    string
	Event        *SessionEvent
	ConnectionID string // Optional: if set, only send to this connection
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		BroadcastBuffer: 1000,
		ControlTimeout:  5 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes broadcast messages until ctx is cancelled
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its pumps
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, sessionID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("session_id", sessionID).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", len(cm.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	removed := false
	if connections, exists := cm.sessionConnections[conn.SessionID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			close(conn.Send)
			removed = true

			if len(connections) == 0 {
				delete(cm.sessionConnections, conn.SessionID)
			}
		}
	}
	cm.mu.Unlock()

	if !removed {
		return
	}

	conn.runCloseHooks()
	log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Msg("connection unregistered")
}

// BroadcastToSession sends an event to every connection of a session
func (cm *ConnectionManager) BroadcastToSession(sessionID string, event *SessionEvent) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: sessionID, Event: event}:
	default:
		log.Warn().Str("session_id", sessionID).Msg("broadcast channel full, dropping message")
	}
}

// SendToConnection queues an event for one connection, dropping it when the queue is full
func (cm *ConnectionManager) SendToConnection(conn *Connection, event *SessionEvent) error {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: conn.SessionID, Event: event, ConnectionID: conn.ID}:
		return nil
	default:
		log.Warn().
			Str("session_id", conn.SessionID).
			Str("connection_id", conn.ID).
			Msg("broadcast channel full, dropping connection message")
		return fmt.Errorf("broadcast channel full")
	}
}

// SendControlToConnection queues an event that must not be dropped, such as
// a navigation. It waits up to ControlTimeout for queue space. Control events
// share the tick queue so they stay ordered after earlier ticks.
func (cm *ConnectionManager) SendControlToConnection(conn *Connection, event *SessionEvent) error {
	timer := time.NewTimer(cm.config.ControlTimeout)
	defer timer.Stop()

	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: conn.SessionID, Event: event, ConnectionID: conn.ID}:
		return nil
	case <-timer.C:
		log.Error().
			Str("session_id", conn.SessionID).
			Str("connection_id", conn.ID).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, control event timed out")
		return fmt.Errorf("broadcast channel full after %s", cm.config.ControlTimeout)
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends happen under the read lock so a concurrent unregister cannot close Send mid-write
	var slow []*Connection
	delivered := 0
	cm.mu.RLock()
	for conn := range cm.sessionConnections[message.SessionID] {
		if message.ConnectionID != "" && conn.ID != message.ConnectionID {
			continue
		}
		select {
		case conn.Send <- eventData:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("session_id", conn.SessionID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("session_id", message.SessionID).
		Int("connections", delivered).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	for _, connections := range cm.sessionConnections {
		totalConnections += len(connections)
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_sessions":   len(cm.sessionConnections),
	}
}

// OnClose registers fn to run once the connection is unregistered.
// If the connection is already gone fn runs immediately.
func (c *Connection) OnClose(fn func()) {
	c.hooksMu.Lock()
	if c.closed {
		c.hooksMu.Unlock()
		fn()
		return
	}
	c.onClose = append(c.onClose, fn)
	c.hooksMu.Unlock()
}

func (c *Connection) runCloseHooks() {
	c.hooksMu.Lock()
	c.closed = true
	hooks := c.onClose
	c.onClose = nil
	c.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		// The countdown is server driven; client messages are only logged
		log.Debug().
			Str("connection_id", c.ID).
			Str("session_id", c.SessionID).
			RawJSON("message", message).
			Msg("received client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
