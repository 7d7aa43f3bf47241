package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finchat/internal/gateway/handlers"
)

func newLimiter(t *testing.T, rpm, burst int, enabled bool) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerMinute: rpm,
		Burst:             burst,
		Enabled:           enabled,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newLimiter(t, 60, 5, true)
	ip := "192.168.1.1"

	for i := range 5 {
		allowed, remaining, _ := rl.Allow(ip)
		assert.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 4-i, remaining)
	}

	allowed, remaining, _ := rl.Allow(ip)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := newLimiter(t, 60, 5, false)
	for range 100 {
		allowed, _, _ := rl.Allow("192.168.1.1")
		require.True(t, allowed)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Enabled: false})
	defer rl.Stop()
	rl.Stop()

	assert.Equal(t, 60, rl.config.RequestsPerMinute)
	assert.Equal(t, 10, rl.config.Burst)
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl := newLimiter(t, 600, 2, true)
	ip := "192.168.1.1"

	rl.Allow(ip)
	rl.Allow(ip)

	// 10 tokens per second.
	time.Sleep(150 * time.Millisecond)

	allowed, _, _ := rl.Allow(ip)
	assert.True(t, allowed)
}

func TestRateLimiter_DifferentClients(t *testing.T) {
	rl := newLimiter(t, 60, 2, true)

	rl.Allow("192.168.1.1")
	rl.Allow("192.168.1.1")
	allowed, _, _ := rl.Allow("192.168.1.1")
	assert.False(t, allowed)

	allowed, remaining, _ := rl.Allow("192.168.1.2")
	assert.True(t, allowed)
	assert.Equal(t, 1, remaining)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := newLimiter(t, 60, 2, true)
	handler := rl.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/x/context", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := range 2 {
		rr := do()
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
		assert.Equal(t, "60", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := do()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, handlers.ErrCodeRateLimited, resp.Error.Code)
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	rl := newLimiter(t, 60, 2, false)
	handler := rl.RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 10 {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
}
