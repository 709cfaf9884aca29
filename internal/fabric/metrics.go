package fabric

import (
	"sync"
	"time"
)

// metricsWindow is the span of the rolling per-upstream counters.
const metricsWindow = time.Hour

// Metrics keeps rolling per-upstream call/failure counts over the last
// hour. Samples are pruned lazily on write and snapshot.
type Metrics struct {
	mu        sync.Mutex
	upstreams map[string]*upstreamSamples
	now       func() time.Time
}

type upstreamSamples struct {
	calls    []time.Time
	failures []time.Time
}

// NewMetrics creates an empty metrics registry.
func NewMetrics() *Metrics {
	return &Metrics{
		upstreams: make(map[string]*upstreamSamples),
		now:       time.Now,
	}
}

// RecordSuccess counts one successful call for the upstream.
func (m *Metrics) RecordSuccess(upstream string) {
	m.record(upstream, false)
}

// RecordFailure counts one failed call for the upstream.
func (m *Metrics) RecordFailure(upstream string) {
	m.record(upstream, true)
}

func (m *Metrics) record(upstream string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.upstreams[upstream]
	if s == nil {
		s = &upstreamSamples{}
		m.upstreams[upstream] = s
	}
	now := m.now()
	s.calls = prune(append(s.calls, now), now)
	if failed {
		s.failures = prune(append(s.failures, now), now)
	} else {
		s.failures = prune(s.failures, now)
	}
}

func prune(samples []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-metricsWindow)
	i := 0
	for i < len(samples) && !samples[i].After(cutoff) {
		i++
	}
	return samples[i:]
}

// Snapshot is the read-only view of one upstream's rolling counters.
type Snapshot struct {
	Service          string  `json:"service"`
	CallsLastHour    int     `json:"calls_last_hour"`
	FailuresLastHour int     `json:"failures_last_hour"`
	FailurePct       float64 `json:"failure_pct"`
	Status           string  `json:"status"`
}

// Snapshots returns the current rolling counters for every upstream seen.
func (m *Metrics) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Snapshot, 0, len(m.upstreams))
	for name, s := range m.upstreams {
		s.calls = prune(s.calls, now)
		s.failures = prune(s.failures, now)

		snap := Snapshot{
			Service:          name,
			CallsLastHour:    len(s.calls),
			FailuresLastHour: len(s.failures),
		}
		if snap.CallsLastHour > 0 {
			snap.FailurePct = 100 * float64(snap.FailuresLastHour) / float64(snap.CallsLastHour)
		}
		switch {
		case snap.CallsLastHour == 0:
			snap.Status = "idle"
		case snap.FailurePct >= 50:
			snap.Status = "degraded"
		default:
			snap.Status = "ok"
		}
		out = append(out, snap)
	}
	return out
}
