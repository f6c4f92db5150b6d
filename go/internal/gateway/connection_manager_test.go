package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mcdev12/eduhub/go/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queuedSurface builds a socket surface over a manager whose broadcast loop is
// not running, so the broadcast queue can be filled on purpose.
func queuedSurface(t *testing.T, buffer int, timeout time.Duration) (*ConnectionManager, *Connection, *socketSurface) {
	t.Helper()
	cfg := DefaultConnectionConfig()
	cfg.BroadcastBuffer = buffer
	cfg.ControlTimeout = timeout
	cm := NewConnectionManager(cfg)

	conn := &Connection{ID: "c1", SessionID: "s1", Manager: cm, Send: make(chan []byte, 8)}
	cm.registerConnection(conn)
	return cm, conn, &socketSurface{manager: cm, conn: conn}
}

func receivedType(t *testing.T, conn *Connection) EventType {
	t.Helper()
	select {
	case data := <-conn.Send:
		var event SessionEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return event.Type
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered event")
		return ""
	}
}

func TestTickIsDroppedWhenQueueFull(t *testing.T) {
	_, _, surface := queuedSurface(t, 1, time.Second)

	require.NoError(t, surface.Render(display.Frame{Text: "00:01", SecondsRemaining: 1}))
	assert.Error(t, surface.Render(display.Frame{Text: "00:00"}))
}

func TestNavigateWaitsForQueueSpace(t *testing.T) {
	cm, conn, surface := queuedSurface(t, 1, 2*time.Second)

	require.NoError(t, surface.Render(display.Frame{Text: "00:00"}))

	done := make(chan error, 1)
	go func() { done <- surface.NavigateTo("/signup") }()

	select {
	case err := <-done:
		t.Fatalf("navigate returned before the queue drained: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cm.Start(ctx)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("navigate never queued")
	}

	assert.Equal(t, EventTypeTimerTick, receivedType(t, conn))
	assert.Equal(t, EventTypeNavigate, receivedType(t, conn))
}

func TestClearTimesOutWhenQueueStaysFull(t *testing.T) {
	_, _, surface := queuedSurface(t, 1, 20*time.Millisecond)

	require.NoError(t, surface.Render(display.Frame{Text: "00:03"}))
	assert.Error(t, surface.Clear())
}
