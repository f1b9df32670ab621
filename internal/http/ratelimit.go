package httpx

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// LoginLimiterConfig configures LoginLimiter.
type LoginLimiterConfig struct {
	Rate     float64 // attempts per second per client
	Burst    int
	Capacity int           // tracked clients; defaults to 10000
	IdleTTL  time.Duration // forget a client after this long; defaults to 15m
}

// LoginLimiter throttles sign-in and registration attempts per client address.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewLoginLimiter returns a limiter, or nil when rate is not positive.
func NewLoginLimiter(cfg LoginLimiterConfig) *LoginLimiter {
	if cfg.Rate <= 0 {
		return nil
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	return &LoginLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](cfg.Capacity, nil, cfg.IdleTTL),
		limit:    rate.Limit(cfg.Rate),
		burst:    cfg.Burst,
	}
}

// Allow reports whether client may attempt another sign-in now. A nil limiter allows everything.
func (l *LoginLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim, ok := l.limiters.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(client, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}
