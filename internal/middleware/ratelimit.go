package middleware

import (
	"net"
	"net/http"
	"sync"

	"brandconfig/internal/metrics"

	"golang.org/x/time/rate"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}

type memoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewMemoryLimiter keeps one token bucket per key in process memory.
func NewMemoryLimiter(perSec float64, burst int) Limiter {
	return &memoryLimiter{
		limiters: map[string]*rate.Limiter{},
		limit:    rate.Limit(perSec),
		burst:    burst,
	}
}

func (m *memoryLimiter) Allow(key string) bool {
	m.mu.Lock()
	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.limit, m.burst)
		m.limiters[key] = l
	}
	m.mu.Unlock()
	return l.Allow()
}

func rateKey(r *http.Request) string {
	if p := PrincipalFromContext(r.Context()); p != nil {
		return string(p.Kind) + ":" + p.UserID()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// RateLimit rejects callers over their budget with 429. Mount it after the
// auth middleware so the budget is per principal.
func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(rateKey(r)) {
				metrics.RateLimitedTotal.Inc()
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
