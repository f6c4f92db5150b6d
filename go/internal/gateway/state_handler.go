package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mcdev12/eduhub/go/internal/auth"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Authenticator is the subset of the auth service the gateway drives
type Authenticator interface {
	Login(ctx context.Context, creds models.Credentials) (*models.Session, error)
	Logout(ctx context.Context, token string) error
	StartDemoSession(ctx context.Context, role string) (*models.Session, error)
}

// SessionRegistry owns the per-session countdowns
type SessionRegistry interface {
	Start(session *models.Session) *demo.Holder
	Stop(sessionID, reason string)
	Snapshot(sessionID string) demo.Snapshot
}

// SessionResponse is returned by the login and demo routes
type SessionResponse struct {
	Session *models.Session `json:"session"`
	State   demo.Snapshot   `json:"state"`
}

// LogoutResponse is returned by the logout route
type LogoutResponse struct {
	State demo.Snapshot `json:"state"`
	Error string        `json:"error,omitempty"`
}

type demoRequest struct {
	Role string `json:"role"`
}

// StateHandler handles HTTP requests for demo session state
type StateHandler struct {
	auth     Authenticator
	registry SessionRegistry
	limiter  *RateLimiter
}

// NewStateHandler creates a new state handler. A nil limiter disables rate limiting.
func NewStateHandler(authenticator Authenticator, registry SessionRegistry, limiter *RateLimiter) *StateHandler {
	return &StateHandler{
		auth:     authenticator,
		registry: registry,
		limiter:  limiter,
	}
}

// HandleStartDemo handles POST /api/demo
func (h *StateHandler) HandleStartDemo(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(h.limiter.ClientIP(r)) {
		http.Error(w, "Too many demo requests", http.StatusTooManyRequests)
		return
	}

	var req demoRequest
	if err := decodeOptional(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.auth.StartDemoSession(r.Context(), req.Role)
	if err != nil {
		log.Error().Err(err).Str("role", req.Role).Msg("failed to start demo session")
		http.Error(w, "Failed to start demo session", http.StatusBadGateway)
		return
	}

	holder := h.registry.Start(session)
	writeJSON(w, http.StatusCreated, SessionResponse{Session: session, State: holder.Snapshot()})
}

// HandleLogin handles POST /api/login
func (h *StateHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.auth.Login(r.Context(), creds)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			http.Error(w, "Email and password are required", http.StatusBadRequest)
			return
		case errors.Is(err, auth.ErrUnauthorized):
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Str("email", creds.Email).Msg("login failed")
		http.Error(w, "Login failed", http.StatusBadGateway)
		return
	}

	if session.IsDemo {
		h.registry.Start(session)
	} else {
		// A full account replaces any countdown left on this session
		h.registry.Stop(session.ID, demo.ReasonNonDemoLogin)
	}

	writeJSON(w, http.StatusOK, SessionResponse{Session: session, State: h.registry.Snapshot(session.ID)})
}

// HandleLogout handles POST /api/logout
func (h *StateHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		http.Error(w, "X-Session-ID header is required", http.StatusBadRequest)
		return
	}

	// The countdown stops before the auth service is contacted
	h.registry.Stop(sessionID, demo.ReasonLogout)
	state := h.registry.Snapshot(sessionID)

	token := bearerToken(r)
	if token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("auth logout failed")
			writeJSON(w, http.StatusBadGateway, LogoutResponse{State: state, Error: "logout failed"})
			return
		}
	}

	writeJSON(w, http.StatusOK, LogoutResponse{State: state})
}

// HandleGetState handles GET /api/demo/state?session_id=
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, h.registry.Snapshot(sessionID))
}

// RegisterStateRoutes registers the REST routes with an HTTP mux
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/demo", h.HandleStartDemo)
	mux.HandleFunc("POST /api/login", h.HandleLogin)
	mux.HandleFunc("POST /api/logout", h.HandleLogout)
	mux.HandleFunc("GET /api/demo/state", h.HandleGetState)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// decodeOptional decodes a JSON body, treating an empty body as zero values
func decodeOptional(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
