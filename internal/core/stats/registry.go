// Package stats implements the Statistics registry (spec.md §4.D): a
// thread-safe per-EventType counter set, mirrored onto Prometheus so the
// engine's dispatch volume is scrapeable the way the teacher's
// internal/core/metrics.Collector exposes HTTP/resource counters.
package stats

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/quantshield/hips-sentinel/internal/core/event"
)

// Registry is a mapping from event.Type to a wrapping uint64 counter.
// Overflow is not guarded, matching spec.md: event volume over a host's
// lifetime fits comfortably in 64 bits.
type Registry struct {
	mu     sync.RWMutex
	counts map[event.Type]uint64

	promCounter *prometheus.CounterVec
}

// New creates an empty Statistics registry. If reg is non-nil, a
// dispatch-count Prometheus CounterVec labeled by event type is registered
// against it; pass nil to skip Prometheus wiring (e.g. in unit tests that
// construct many registries and would otherwise collide on registration).
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{counts: make(map[event.Type]uint64)}
	if reg != nil {
		r.promCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hips_security_events_total",
			Help: "Total security events processed by the dispatcher, by event type.",
		}, []string{"event_type"})
		reg.MustRegister(r.promCounter)
	}
	return r
}

// Increment bumps the counter for typ by one.
func (r *Registry) Increment(typ event.Type) {
	r.mu.Lock()
	r.counts[typ]++
	r.mu.Unlock()

	if r.promCounter != nil {
		r.promCounter.WithLabelValues(string(typ)).Inc()
	}
}

// Count returns the current value for typ.
func (r *Registry) Count(typ event.Type) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[typ]
}

// Total returns the sum of all per-type counters.
func (r *Registry) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total uint64
	for _, c := range r.counts {
		total += c
	}
	return total
}

// Snapshot returns a copy of all counters, keyed by event type.
func (r *Registry) Snapshot() map[event.Type]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[event.Type]uint64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}
