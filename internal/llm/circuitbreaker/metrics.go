package circuitbreaker

import "sync/atomic"

type breakerMetrics struct {
	stateTransitions    atomic.Int64
	requestsAllowed     atomic.Int64
	requestsRejected    atomic.Int64
	probeAttempts       atomic.Int64
	probeSuccesses      atomic.Int64
	probeGuardConflicts atomic.Int64
}

// Stats aggregates every breaker's counters.
type Stats struct {
	TotalBreakers int            `json:"total_breakers"`
	StateCount    map[string]int `json:"state_count"`

	TotalStateTransitions    int64 `json:"total_state_transitions"`
	TotalRequestsAllowed     int64 `json:"total_requests_allowed"`
	TotalRequestsRejected    int64 `json:"total_requests_rejected"`
	TotalProbeAttempts       int64 `json:"total_probe_attempts"`
	TotalProbeSuccesses      int64 `json:"total_probe_successes"`
	TotalProbeGuardConflicts int64 `json:"total_probe_guard_conflicts"`
}

func (s *Stats) add(cb *circuitBreaker) {
	s.TotalBreakers++
	s.StateCount[cb.currentState().String()]++
	s.TotalStateTransitions += cb.metrics.stateTransitions.Load()
	s.TotalRequestsAllowed += cb.metrics.requestsAllowed.Load()
	s.TotalRequestsRejected += cb.metrics.requestsRejected.Load()
	s.TotalProbeAttempts += cb.metrics.probeAttempts.Load()
	s.TotalProbeSuccesses += cb.metrics.probeSuccesses.Load()
	s.TotalProbeGuardConflicts += cb.metrics.probeGuardConflicts.Load()
}
