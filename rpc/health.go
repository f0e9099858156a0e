package rpc

import (
	"sync"
	"time"
)

// HealthTracker selects among several HTTP endpoints and opens a circuit
// on an endpoint that's failing, so a caller with multiple RPC providers
// configured (e.g. a primary and a fallback) degrades gracefully instead
// of hammering a dead one. Adapted from the teacher's
// rpc/health.go SimpleHealthTracker; §4.1 reserves endpoint selection
// policy as implementation freedom for the HTTP provider.
type HealthTracker interface {
	RecordSuccess(endpoint string, latency time.Duration)
	RecordFailure(endpoint string, err error)
	IsHealthy(endpoint string) bool
	Pick(endpoints []string, attempted map[string]bool) string
}

type endpointHealth struct {
	totalCalls      int64
	successfulCalls int64
	failedCalls     int64
	circuitOpen     bool
	lastFailure     time.Time
}

// CircuitBreakerHealthTracker opens a circuit for an endpoint after a run
// of consecutive failures and closes it again after a run of consecutive
// successes, or after openWindow has elapsed since the last
// failure (half-open retry).
type CircuitBreakerHealthTracker struct {
	mu sync.Mutex
	h  map[string]*endpointHealth

	failureThreshold int
	successThreshold int
	openWindow        time.Duration
}

// NewCircuitBreakerHealthTracker constructs a tracker with sensible
// defaults mirroring the teacher's constants: 3 consecutive failures
// opens the circuit, 2 consecutive successes closes it, and an open
// circuit is retried after 30s.
func NewCircuitBreakerHealthTracker() *CircuitBreakerHealthTracker {
	return &CircuitBreakerHealthTracker{
		h:                 make(map[string]*endpointHealth),
		failureThreshold:  3,
		successThreshold:  2,
		openWindow:         30 * time.Second,
	}
}

func (t *CircuitBreakerHealthTracker) entry(endpoint string) *endpointHealth {
	e, ok := t.h[endpoint]
	if !ok {
		e = &endpointHealth{}
		t.h[endpoint] = e
	}
	return e
}

func (t *CircuitBreakerHealthTracker) RecordSuccess(endpoint string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(endpoint)
	e.totalCalls++
	e.successfulCalls++
	if e.circuitOpen {
		consecutive := e.successfulCalls - e.failedCalls
		if consecutive >= int64(t.successThreshold) {
			e.circuitOpen = false
		}
	}
}

func (t *CircuitBreakerHealthTracker) RecordFailure(endpoint string, _ error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entry(endpoint)
	e.totalCalls++
	e.failedCalls++
	e.lastFailure = time.Now()
	consecutive := e.failedCalls - e.successfulCalls
	if consecutive >= int64(t.failureThreshold) {
		e.circuitOpen = true
	}
}

func (t *CircuitBreakerHealthTracker) IsHealthy(endpoint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.h[endpoint]
	if !ok {
		return true
	}
	if e.circuitOpen && time.Since(e.lastFailure) < t.openWindow {
		return false
	}
	return true
}

// Pick returns the first unattempted healthy endpoint, falling back to
// any unattempted endpoint if none are healthy.
func (t *CircuitBreakerHealthTracker) Pick(endpoints []string, attempted map[string]bool) string {
	for _, ep := range endpoints {
		if attempted[ep] && t.IsHealthy(ep) {
			continue
		}
		if !attempted[ep] && t.IsHealthy(ep) {
			return ep
		}
	}
	for _, ep := range endpoints {
		if !attempted[ep] {
			return ep
		}
	}
	return ""
}
