package errors

import (
	"sync"
	"time"
)

// BreakerState is the state of a host breaker.
type BreakerState int

const (
	// BreakerClosed means fetches to the host proceed normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means the host is suspended.
	BreakerOpen
	// BreakerHalfOpen means a single probe fetch is in flight.
	BreakerHalfOpen
)

// String returns the string representation of BreakerState.
func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker suspends fetches to one host after a run of consecutive
// failures. After the cool-down a single probe is let through; its
// outcome decides whether the host is released or suspended again.
type Breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a breaker that trips after threshold consecutive
// failures and holds for cooldown before probing again.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a fetch may proceed. A true result obliges the
// caller to report the outcome through RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true

	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			return true
		}
		return false

	default:
		// A probe is already in flight.
		return false
	}
}

// RecordSuccess clears the failure run and closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = BreakerClosed
}

// RecordFailure counts a failure and trips the breaker when the run
// reaches the threshold. A failed probe suspends the host again.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// HostBreakers manages one breaker per host.
type HostBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	threshold int
	cooldown  time.Duration
}

// NewHostBreakers creates a per-host breaker manager.
func NewHostBreakers(threshold int, cooldown time.Duration) *HostBreakers {
	return &HostBreakers{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Get returns the breaker for a host, creating one if needed.
func (hb *HostBreakers) Get(host string) *Breaker {
	hb.mu.RLock()
	b, ok := hb.breakers[host]
	hb.mu.RUnlock()
	if ok {
		return b
	}

	hb.mu.Lock()
	defer hb.mu.Unlock()

	if b, ok = hb.breakers[host]; ok {
		return b
	}
	b = NewBreaker(hb.threshold, hb.cooldown)
	hb.breakers[host] = b
	return b
}

// States returns the state of every host seen so far.
func (hb *HostBreakers) States() map[string]BreakerState {
	hb.mu.RLock()
	defer hb.mu.RUnlock()

	states := make(map[string]BreakerState, len(hb.breakers))
	for host, b := range hb.breakers {
		states[host] = b.State()
	}
	return states
}
