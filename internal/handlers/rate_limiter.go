package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow(key string) bool
}

// clientLimiter keeps one token bucket per client. A bucket refills limit
// tokens per window and holds at most limit.
type clientLimiter struct {
	limit  int
	every  rate.Limit
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newClientLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientLimiter{
		limit:   limit,
		every:   rate.Every(window / time.Duration(limit)),
		window:  window,
		clock:   clock,
		buckets: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		// Idle buckets are full again, so dropping them changes nothing.
		for k, idle := range l.buckets {
			if now.Sub(idle.seen) > l.window {
				delete(l.buckets, k)
			}
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.every, l.limit)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}

// clientKey identifies the caller. RealIP has already normalised RemoteAddr.
func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
