// Package ratelimit throttles API requests per caller with token buckets.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"contact-sync/internal/common/logging"
)

// Config represents rate limiter configuration
type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	Enabled           bool
	// Buckets idle longer than CleanupPeriod are dropped.
	CleanupPeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		BurstSize:         20,
		Enabled:           true,
		CleanupPeriod:     10 * time.Minute,
	}
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter keeps one bucket per key.
type Limiter struct {
	mu          sync.Mutex
	config      Config
	buckets     map[string]*entry
	lastCleanup time.Time
	now         func() time.Time
}

func New(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.BurstSize <= 0 {
		config.BurstSize = defaults.BurstSize
	}
	if config.CleanupPeriod <= 0 {
		config.CleanupPeriod = defaults.CleanupPeriod
	}
	return &Limiter{
		config:      config,
		buckets:     make(map[string]*entry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow takes a token from key's bucket.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastCleanup) > l.config.CleanupPeriod {
		l.cleanup(now)
	}
	e, ok := l.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.BurstSize)}
		l.buckets[key] = e
	}
	e.lastUsed = now
	return e.limiter.AllowN(now, 1)
}

func (l *Limiter) cleanup(now time.Time) {
	cutoff := now.Add(-l.config.CleanupPeriod)
	for key, e := range l.buckets {
		if e.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	l.lastCleanup = now
}

// Middleware rejects requests over the limit with 429. Requests for which
// keyFunc returns "" share one bucket.
func Middleware(l *Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if !l.Allow(key) {
				logging.Debug("Rate limit exceeded", logging.String("key", key), logging.String("path", r.URL.Path))
				w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(l.config.RequestsPerSecond, 'f', -1, 64))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserKey keys requests by the authenticated user.
func UserKey(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
