package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgtypes "github.com/turtacn/casemind/pkg/types/common"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestLimiter(rate float64, burst int) (*TokenBucketLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewTokenBucketLimiter(rate, burst, 0)
	l.now = clock.Now
	return l, clock
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(2, 3)

	for i := 0; i < 3; i++ {
		ok, info := l.Allow("ip:1")
		require.True(t, ok, "request %d", i)
		assert.Equal(t, 2-i, info.Remaining)
		assert.Equal(t, 3, info.Limit)
	}
	ok, info := l.Allow("ip:1")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)

	// other keys have their own bucket
	ok, _ = l.Allow("ip:2")
	assert.True(t, ok)

	clock.Advance(500 * time.Millisecond)
	ok, _ = l.Allow("ip:1")
	assert.True(t, ok)
	ok, _ = l.Allow("ip:1")
	assert.False(t, ok)

	// refill is capped at the burst size
	clock.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		ok, _ = l.Allow("ip:1")
		assert.True(t, ok)
	}
	ok, _ = l.Allow("ip:1")
	assert.False(t, ok)
}

func TestTokenBucket_CleanupDropsIdleBuckets(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	l.cleanupInterval = time.Minute

	l.Allow("idle")
	clock.Advance(30 * time.Second)
	l.Allow("busy")
	clock.Advance(45 * time.Second)

	l.cleanup()
	assert.Equal(t, 1, l.BucketCount())
	ok, _ := l.Allow("idle")
	assert.True(t, ok)
}

func TestTokenBucket_StopIsIdempotent(t *testing.T) {
	l := NewTokenBucketLimiter(1, 1, 10*time.Millisecond)
	l.Stop()
	l.Stop()
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	l, _ := newTestLimiter(0.5, 2)
	r := newEngine("/api/v1/cases", RequestID(), RateLimit(l, DefaultRateLimitConfig()))

	for i := 0; i < 2; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, fmt.Sprint(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body pkgtypes.APIResponse[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "COMMON_007", body.Error.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestRateLimit_SkipPaths(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	r := newEngine("/healthz", RateLimit(l, DefaultRateLimitConfig()))
	for i := 0; i < 5; i++ {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Zero(t, l.BucketCount())
}

func TestAPIKeyKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", APIKeyKey(c))

	c.Request.Header.Set("X-API-Key", "secret-key")
	key := APIKeyKey(c)
	assert.Regexp(t, `^apikey:[0-9a-f]{16}$`, key)
	assert.NotContains(t, key, "secret")
}

func TestRateLimit_KeysByAPIKey(t *testing.T) {
	l, _ := newTestLimiter(0.1, 1)
	r := newEngine("/x", RateLimit(l, RateLimitConfig{KeyFunc: APIKeyKey}))

	send := func(apiKey string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-API-Key", apiKey)
		return serve(r, req).Code
	}
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
}

//Personal.AI order the ending
