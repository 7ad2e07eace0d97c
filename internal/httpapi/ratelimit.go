package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// keyedRateLimiter is a fixed-window counter over arbitrary keys. Two
// instances serve the draft core: one for player actions keyed by
// "act:<sessionKey>:<playerToken or client address>", one for owner
// mutations keyed by "own:<ownerID>". Stream endpoints bypass both.
type keyedRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateEntry
	limit   int
	window  time.Duration
}

type rateEntry struct {
	resetAt time.Time
	count   int
}

func newKeyedRateLimiter(limit int, window time.Duration) *keyedRateLimiter {
	return &keyedRateLimiter{
		entries: map[string]*rateEntry{},
		limit:   limit,
		window:  window,
	}
}

func (l *keyedRateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil || now.After(e.resetAt) {
		l.entries[key] = &rateEntry{resetAt: now.Add(l.window), count: 1}
		l.sweepLocked(now)
		return true
	}
	if e.count >= l.limit {
		return false
	}
	e.count++
	return true
}

// middleware applies the limiter per client address across the whole
// router. SSE connections are long-lived and skip it.
func (l *keyedRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/stream") {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow("ip:" + ip) {
			writeError(w, http.StatusTooManyRequests, "rate-limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// sweepLocked drops expired windows opportunistically so the map does
// not grow with dead session keys.
func (l *keyedRateLimiter) sweepLocked(now time.Time) {
	if len(l.entries) < 4096 {
		return
	}
	for k, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, k)
		}
	}
}
