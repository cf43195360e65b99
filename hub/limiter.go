package hub

import (
	"sync"

	"golang.org/x/time/rate"
)

// connLimiter enforces a per-connection token bucket on inbound frames so a
// misbehaving client cannot monopolize the read path.
type connLimiter struct {
	mu       sync.Mutex
	limiters map[Conn]*rate.Limiter
	r        rate.Limit
	b        int
}

func newConnLimiter(r float64, b int) *connLimiter {
	return &connLimiter{
		limiters: make(map[Conn]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

func (l *connLimiter) allow(c Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[c]
	if !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.limiters[c] = limiter
	}
	return limiter.Allow()
}

func (l *connLimiter) forget(c Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, c)
}
