package fabric

import (
	"sync"
	"time"
)

// BreakerSettings tunes one upstream's circuit breaker.
type BreakerSettings struct {
	Threshold int
	Window    time.Duration
	CoolDown  time.Duration
}

// DefaultBreakerSettings matches the documented defaults: 5 failures
// within 60s opens the breaker for 300s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Threshold: 5,
		Window:    60 * time.Second,
		CoolDown:  300 * time.Second,
	}
}

// breaker quarantines an upstream after repeated failures. While open,
// calls fail fast before a token is consumed.
type breaker struct {
	mu        sync.Mutex
	settings  BreakerSettings
	failures  []time.Time
	openUntil time.Time
	now       func() time.Time
}

func newBreaker(s BreakerSettings) *breaker {
	if s.Threshold <= 0 {
		s = DefaultBreakerSettings()
	}
	return &breaker{settings: s, now: time.Now}
}

// Allow reports whether a call may proceed. After the cool-down elapses
// the breaker lets one probe through (half-open behavior falls out of the
// failure window having expired).
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.openUntil)
}

// RecordFailure counts a failure and opens the breaker once the count
// inside the sliding window reaches the threshold.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.settings.Window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) >= b.settings.Threshold {
		b.openUntil = now.Add(b.settings.CoolDown)
		b.failures = b.failures[:0]
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
	b.openUntil = time.Time{}
}
