// Package ratelimit paces outbound requests made during a crawl.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter enforces a global request rate plus an independent rate for
// each domain, so a crawl spanning many origins cannot flood any single
// one. A non-positive rate means unlimited.
type Limiter struct {
	mu           sync.RWMutex
	global       *rate.Limiter
	perDomain    map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// New creates a limiter allowing requestsPerSecond with the given burst.
// The same settings seed per-domain limiters as domains appear.
func New(requestsPerSecond float64, burst int) *Limiter {
	limit, burst := normalize(requestsPerSecond, burst)
	return &Limiter{
		global:       rate.NewLimiter(limit, burst),
		perDomain:    make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
	}
}

func normalize(requestsPerSecond float64, burst int) (rate.Limit, int) {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return limit, burst
}

// Wait blocks until the global limiter admits a request or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.global.Wait(ctx)
}

// WaitDomain blocks until both the global limiter and the limiter for
// domain admit a request, or ctx ends.
func (l *Limiter) WaitDomain(ctx context.Context, domain string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.domainLimiter(domain).Wait(ctx)
}

// Allow reports whether the global limiter admits a request right now.
func (l *Limiter) Allow() bool {
	return l.global.Allow()
}

// AllowDomain reports whether both the global and the per-domain
// limiter admit a request right now.
func (l *Limiter) AllowDomain(domain string) bool {
	if !l.global.Allow() {
		return false
	}
	return l.domainLimiter(domain).Allow()
}

// SetDomainRate overrides the rate for a single domain.
func (l *Limiter) SetDomainRate(domain string, requestsPerSecond float64, burst int) {
	limit, burst := normalize(requestsPerSecond, burst)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perDomain[domain] = rate.NewLimiter(limit, burst)
}

// SetRate replaces the global rate. Domains first seen afterwards pick
// up the new settings; existing per-domain limiters keep theirs.
func (l *Limiter) SetRate(requestsPerSecond float64, burst int) {
	limit, burst := normalize(requestsPerSecond, burst)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.global.SetLimit(limit)
	l.global.SetBurst(burst)
	l.defaultRate = limit
	l.defaultBurst = burst
}

func (l *Limiter) domainLimiter(domain string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.perDomain[domain]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.perDomain[domain]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.perDomain[domain] = lim
	return lim
}

// LimiterStats describes the limiter's current shape.
type LimiterStats struct {
	DomainCount  int     `json:"domain_count"`
	DefaultRate  float64 `json:"default_rate"`
	DefaultBurst int     `json:"default_burst"`
}

// Stats returns a snapshot of the limiter configuration.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LimiterStats{
		DomainCount:  len(l.perDomain),
		DefaultRate:  float64(l.defaultRate),
		DefaultBurst: l.defaultBurst,
	}
}
