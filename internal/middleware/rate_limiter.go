package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter controls how frequently a caller may submit commands.
type RateLimiter interface {
	Allow(key string) bool
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter keeps one token bucket per client key and forgets clients
// idle for longer than the ttl.
type ClientRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	lastGC  time.Time
	now     func() time.Time
}

// NewClientRateLimiter allows up to requests events per window per key, plus
// burst. Idle keys are dropped after ttl.
func NewClientRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *ClientRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &ClientRateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (l *ClientRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	if now.Sub(l.lastGC) > l.ttl {
		l.gcLocked(now)
	}

	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *ClientRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *ClientRateLimiter) gcLocked(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.clients, key)
		}
	}
	l.lastGC = now
}

// WithNowFunc overrides the time source, for tests.
func (l *ClientRateLimiter) WithNowFunc(now func() time.Time) *ClientRateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}
