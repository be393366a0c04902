package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one token bucket per API key. Limits follow the current
// security settings, so a config reload retunes existing buckets.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLimiterPool() *limiterPool {
	return &limiterPool{limiters: make(map[string]*rate.Limiter)}
}

// allow reports whether a request under key fits within perMinute requests
// per minute. A non-positive limit disables the check.
func (p *limiterPool) allow(key string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	limit := rate.Limit(float64(perMinute) / 60.0)

	p.mu.Lock()
	lim, ok := p.limiters[key]
	if !ok {
		lim = rate.NewLimiter(limit, perMinute)
		p.limiters[key] = lim
	} else if lim.Limit() != limit {
		lim.SetLimit(limit)
		lim.SetBurst(perMinute)
	}
	p.mu.Unlock()

	return lim.Allow()
}
