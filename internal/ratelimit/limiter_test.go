package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_Allow(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, BurstSize: 2, Enabled: true})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"), "burst exhausted")
	assert.True(t, l.Allow("bob"), "keys have separate buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("alice"), "bucket refills over time")
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, BurstSize: 1})
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("alice"))
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, BurstSize: 1, Enabled: true, CleanupPeriod: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastCleanup = now

	l.Allow("alice")
	now = now.Add(2 * time.Minute)
	l.Allow("bob")

	assert.NotContains(t, l.buckets, "alice")
	assert.Contains(t, l.buckets, "bob")
}

func TestMiddleware(t *testing.T) {
	l := New(Config{RequestsPerSecond: 0.001, BurstSize: 1, Enabled: true})
	handler := Middleware(l, UserKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	request := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/carddav/sync", nil)
		req.Header.Set("X-User-ID", user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, request("alice").Code)
	rec := request("alice")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, request("bob").Code)
}
