package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/eduhub/go/internal/auth"
	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeAuth struct {
	mu        sync.Mutex
	session   *models.Session
	loginErr  error
	logoutErr error
	onLogout  func(token string)
	roles     []string
	tokens    []string
}

func (f *fakeAuth) Login(ctx context.Context, creds models.Credentials) (*models.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.session, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string) error {
	if f.onLogout != nil {
		f.onLogout(token)
	}
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	return f.logoutErr
}

func (f *fakeAuth) StartDemoSession(ctx context.Context, role string) (*models.Session, error) {
	f.mu.Lock()
	f.roles = append(f.roles, role)
	f.mu.Unlock()
	return f.session, nil
}

func (f *fakeAuth) seenRoles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roles...)
}

func (f *fakeAuth) seenTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func testRegistry() (*demo.Registry, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	cfg := demo.Config{
		Duration:       3 * time.Second,
		ExpiringWindow: 2 * time.Second,
		LogoutTimeout:  time.Second,
	}
	return demo.NewRegistry(cfg, clock, nil), clock
}

func newTestServer(t *testing.T, cfg Config, registry *demo.Registry, authenticator Authenticator) *httptest.Server {
	t.Helper()
	svc := NewService(cfg, registry, authenticator)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		registry.StopAll(demo.ReasonShutdown)
	})
	return srv
}

func post(t *testing.T, url string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func demoSession() *models.Session {
	return &models.Session{ID: "s1", Token: "tok-1", Role: "student", IsDemo: true}
}

func TestStartDemoRoute(t *testing.T) {
	registry, _ := testRegistry()
	fa := &fakeAuth{session: demoSession()}
	srv := newTestServer(t, DefaultConfig(), registry, fa)

	resp := post(t, srv.URL+"/api/demo", map[string]string{"role": "instructor"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "s1", body.Session.ID)
	assert.True(t, body.State.IsDemo)
	assert.Equal(t, 3, body.State.SecondsRemaining)
	assert.Equal(t, demo.PhaseRunning, body.State.Phase)
	assert.Equal(t, []string{"instructor"}, fa.seenRoles())
	assert.Equal(t, 1, registry.Active())
}

func TestStartDemoWithoutBodyUsesDefaultRole(t *testing.T) {
	registry, _ := testRegistry()
	fa := &fakeAuth{session: demoSession()}
	srv := newTestServer(t, DefaultConfig(), registry, fa)

	resp := post(t, srv.URL+"/api/demo", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{""}, fa.seenRoles())
}

func TestStartDemoIsRateLimited(t *testing.T) {
	registry, _ := testRegistry()
	cfg := DefaultConfig()
	cfg.DemoRateLimit = rate.Every(time.Hour)
	cfg.DemoBurst = 1
	srv := newTestServer(t, cfg, registry, &fakeAuth{session: demoSession()})

	first := post(t, srv.URL+"/api/demo", nil, nil)
	second := post(t, srv.URL+"/api/demo", nil, nil)

	assert.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
}

func TestLoginRoute(t *testing.T) {
	t.Run("demo login starts countdown", func(t *testing.T) {
		registry, _ := testRegistry()
		srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{session: demoSession()})

		resp := post(t, srv.URL+"/api/login", models.Credentials{Email: "a@b.c", Password: "pw"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, registry.Snapshot("s1").IsDemo)
	})

	t.Run("full login stops existing countdown", func(t *testing.T) {
		registry, _ := testRegistry()
		registry.Start(demoSession())
		full := &models.Session{ID: "s1", Token: "tok-2", Role: "student"}
		srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{session: full})

		resp := post(t, srv.URL+"/api/login", models.Credentials{Email: "a@b.c", Password: "pw"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body SessionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.False(t, body.State.IsDemo)
		assert.Equal(t, 3, body.State.SecondsRemaining)
		assert.Equal(t, 0, registry.Active())
	})

	t.Run("bad credentials", func(t *testing.T) {
		registry, _ := testRegistry()
		srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{loginErr: auth.ErrUnauthorized})

		resp := post(t, srv.URL+"/api/login", models.Credentials{Email: "a@b.c", Password: "x"}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing password", func(t *testing.T) {
		registry, _ := testRegistry()
		c := auth.NewClient("http://127.0.0.1:1")
		srv := newTestServer(t, DefaultConfig(), registry, c)

		resp := post(t, srv.URL+"/api/login", models.Credentials{Email: "a@b.c"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, 0, registry.Active())
	})

	t.Run("auth service down", func(t *testing.T) {
		registry, _ := testRegistry()
		srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{loginErr: errors.New("dial tcp: refused")})

		resp := post(t, srv.URL+"/api/login", models.Credentials{Email: "a@b.c", Password: "x"}, nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestLogoutStopsCountdownBeforeAuth(t *testing.T) {
	registry, _ := testRegistry()
	registry.Start(demoSession())

	phaseAtLogout := make(chan demo.Phase, 1)
	fa := &fakeAuth{onLogout: func(string) { phaseAtLogout <- registry.Snapshot("s1").Phase }}
	srv := newTestServer(t, DefaultConfig(), registry, fa)

	resp := post(t, srv.URL+"/api/logout", nil, map[string]string{
		"X-Session-ID":  "s1",
		"Authorization": "Bearer tok-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, demo.PhaseInactive, <-phaseAtLogout)
	assert.Equal(t, []string{"tok-1"}, fa.seenTokens())
	assert.Equal(t, 0, registry.Active())
}

func TestLogoutFailureStillClearsCountdown(t *testing.T) {
	registry, _ := testRegistry()
	registry.Start(demoSession())
	srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{logoutErr: errors.New("boom")})

	resp := post(t, srv.URL+"/api/logout", nil, map[string]string{
		"X-Session-ID":  "s1",
		"Authorization": "Bearer tok-1",
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body LogoutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.State.IsDemo)
	assert.Equal(t, 3, body.State.SecondsRemaining)
	assert.NotEmpty(t, body.Error)
}

func TestLogoutRequiresSessionHeader(t *testing.T) {
	registry, _ := testRegistry()
	srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{})

	resp := post(t, srv.URL+"/api/logout", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetState(t *testing.T) {
	registry, _ := testRegistry()
	srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{})

	resp, err := http.Get(srv.URL + "/api/demo/state?session_id=unknown")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap demo.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.IsDemo)
	assert.Equal(t, 3, snap.SecondsRemaining)

	missing, err := http.Get(srv.URL + "/api/demo/state")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
}

func dialDemo(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/demo?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) SessionEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event SessionEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func readTick(t *testing.T, conn *websocket.Conn) TimerTickPayload {
	t.Helper()
	event := readEvent(t, conn)
	require.Equal(t, EventTypeTimerTick, event.Type)
	payload, err := ParseEventPayload(&event)
	require.NoError(t, err)
	return payload.(TimerTickPayload)
}

func TestWebSocketStreamsCountdownAndNavigates(t *testing.T) {
	registry, clock := testRegistry()
	srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{})
	registry.Start(demoSession())

	conn := dialDemo(t, srv, "s1")

	first := readTick(t, conn)
	assert.Equal(t, "00:03", first.Text)
	assert.False(t, first.Expiring)

	clock.Advance(time.Second)
	second := readTick(t, conn)
	assert.Equal(t, "00:02", second.Text)
	assert.True(t, second.Expiring)

	clock.Advance(time.Second)
	assert.Equal(t, "00:01", readTick(t, conn).Text)

	clock.Advance(time.Second)
	last := readTick(t, conn)
	assert.Equal(t, "00:00", last.Text)
	assert.Equal(t, 0, last.SecondsRemaining)

	nav := readEvent(t, conn)
	require.Equal(t, EventTypeNavigate, nav.Type)
	payload, err := ParseEventPayload(&nav)
	require.NoError(t, err)
	assert.Equal(t, "/signup", payload.(NavigatePayload).Route)

	cleared := readEvent(t, conn)
	assert.Equal(t, EventTypeTimerCleared, cleared.Type)
	assert.Equal(t, "s1", cleared.SessionID)
}

func TestWebSocketClearsOnStop(t *testing.T) {
	registry, _ := testRegistry()
	srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{})
	registry.Start(demoSession())

	conn := dialDemo(t, srv, "s1")
	readTick(t, conn)

	registry.Stop("s1", demo.ReasonLogout)
	assert.Equal(t, EventTypeTimerCleared, readEvent(t, conn).Type)
}

func TestWebSocketRequiresSessionID(t *testing.T) {
	registry, _ := testRegistry()
	srv := newTestServer(t, DefaultConfig(), registry, &fakeAuth{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/demo"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
