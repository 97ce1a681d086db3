package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles submissions per page context so one chatty tab
// cannot starve the coordinator or the remote services.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a limiter allowing requestsPerMinute sustained
// submissions per context with the given burst
func NewLimiter(requestsPerMinute int, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
	}
}

// limiterFor returns the limiter for a context, creating it on first use
func (l *Limiter) limiterFor(contextID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[contextID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[contextID] = limiter
	}
	return limiter
}

// Allow reports whether a submission for the context may proceed now
func (l *Limiter) Allow(contextID string) bool {
	return l.limiterFor(contextID).Allow()
}

// Tokens returns the remaining burst budget for a context
func (l *Limiter) Tokens(contextID string) float64 {
	return l.limiterFor(contextID).Tokens()
}

// Forget drops a context's limiter when the context is torn down
func (l *Limiter) Forget(contextID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, contextID)
}
