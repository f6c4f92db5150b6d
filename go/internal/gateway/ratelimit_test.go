package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func requestFrom(remote, forwarded string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/demo", nil)
	r.RemoteAddr = remote
	if forwarded != "" {
		r.Header.Set("X-Forwarded-For", forwarded)
	}
	return r
}

func TestClientIPIgnoresForwardedFromUntrustedPeer(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, clockwork.NewFakeClock(), nil)

	assert.Equal(t, "10.0.0.7", rl.ClientIP(requestFrom("10.0.0.7:5123", "")))
	assert.Equal(t, "198.51.100.4", rl.ClientIP(requestFrom("198.51.100.4:5123", "203.0.113.9")))
}

func TestClientIPWalksTrustedProxies(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1, clockwork.NewFakeClock(), []string{"10.0.0.0/8", "192.168.1.5", "not-an-ip"})

	// The leftmost hop is client supplied; the last untrusted hop is the real client
	assert.Equal(t, "203.0.113.9", rl.ClientIP(requestFrom("10.0.0.1:443", "1.2.3.4, 203.0.113.9, 10.0.0.2")))
	assert.Equal(t, "203.0.113.9", rl.ClientIP(requestFrom("192.168.1.5:443", "203.0.113.9")))
	assert.Equal(t, "10.0.0.2", rl.ClientIP(requestFrom("10.0.0.1:443", "10.0.0.2")))
	assert.Equal(t, "10.0.0.1", rl.ClientIP(requestFrom("10.0.0.1:443", "")))
	assert.Equal(t, "10.0.0.1", rl.ClientIP(requestFrom("10.0.0.1:443", "garbage")))
}

func TestRotatingForwardedHeaderDoesNotBypassLimit(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Hour), 2, clockwork.NewFakeClock(), nil)

	allowed := 0
	for i := 0; i < 20; i++ {
		r := requestFrom("198.51.100.4:5123", fmt.Sprintf("203.0.113.%d", i))
		if rl.Allow(rl.ClientIP(r)) {
			allowed++
		}
	}

	assert.Equal(t, 2, allowed)
	assert.Equal(t, 1, rl.size())
}

func TestCleanupEvictsIdleVisitors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(rate.Every(time.Hour), 1, clock, nil)

	assert.True(t, rl.Allow("198.51.100.1"))
	clock.Advance(5 * time.Minute)
	assert.True(t, rl.Allow("198.51.100.2"))
	assert.False(t, rl.Allow("198.51.100.2"))

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup(10*time.Minute))
	assert.Equal(t, 1, rl.size())

	// A forgotten visitor starts over with a full burst
	assert.True(t, rl.Allow("198.51.100.1"))
}
