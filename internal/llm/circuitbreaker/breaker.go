// Package circuitbreaker fails judge calls fast while a provider/model pair
// is unhealthy. Each pair gets its own three-state breaker driven by atomics.
package circuitbreaker

import (
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

// CircuitState is the breaker state machine position.
type CircuitState int32

const (
	// StateClosed allows requests through.
	StateClosed CircuitState = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen admits a bounded number of probes.
	StateHalfOpen
)

// String names the state for logs and metrics.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// jitter is at most a tenth of the open timeout.
const jitterDivisor = 10

type circuitBreaker struct {
	state           atomic.Int32
	failures        atomic.Int32
	successes       atomic.Int32
	lastFailureTime atomic.Int64
	halfOpenProbes  atomic.Int32

	failureThreshold  int
	successThreshold  int
	openTimeout       time.Duration
	maxHalfOpenProbes int
	jitter            bool

	now     func() time.Time
	logger  *slog.Logger
	metrics *breakerMetrics
}

func newCircuitBreaker(b *Breakers, key string) *circuitBreaker {
	cb := &circuitBreaker{
		failureThreshold:  b.config.FailureThreshold,
		successThreshold:  b.config.SuccessThreshold,
		openTimeout:       b.config.OpenTimeout,
		maxHalfOpenProbes: b.config.HalfOpenProbes,
		jitter:            b.jitter,
		now:               b.now,
		logger:            b.logger.With("breaker", key),
		metrics:           &breakerMetrics{},
	}
	cb.state.Store(int32(StateClosed))
	return cb
}

func (cb *circuitBreaker) currentState() CircuitState {
	return CircuitState(cb.state.Load())
}

func (cb *circuitBreaker) openDeadline() time.Time {
	timeout := cb.openTimeout
	if cb.jitter && cb.openTimeout/jitterDivisor > 0 {
		timeout += time.Duration(rand.Int64N(int64(cb.openTimeout / jitterDivisor))) // #nosec G404 -- non-cryptographic jitter
	}
	return time.Unix(0, cb.lastFailureTime.Load()).Add(timeout)
}

// allow reports whether a request may proceed, whether it is a half-open
// probe, and a release func that must run when the request finishes.
func (cb *circuitBreaker) allow() (allowed, probe bool, release func()) {
	noop := func() {}

	state := cb.currentState()
	switch state {
	case StateClosed:
		cb.metrics.requestsAllowed.Add(1)
		return true, false, noop

	case StateOpen:
		if cb.now().Before(cb.openDeadline()) {
			cb.metrics.requestsRejected.Add(1)
			return false, false, noop
		}
		cb.transition(StateOpen, StateHalfOpen)
	}

	for {
		current := cb.halfOpenProbes.Load()
		if int(current) >= cb.maxHalfOpenProbes {
			cb.metrics.requestsRejected.Add(1)
			return false, false, noop
		}
		if cb.halfOpenProbes.CompareAndSwap(current, current+1) {
			cb.metrics.probeAttempts.Add(1)
			cb.metrics.requestsAllowed.Add(1)
			return true, true, func() {
				// A concurrent transition may already have reset the slot count.
				for {
					cur := cb.halfOpenProbes.Load()
					if cur == 0 || cb.halfOpenProbes.CompareAndSwap(cur, cur-1) {
						return
					}
				}
			}
		}
	}
}

func (cb *circuitBreaker) recordSuccess() {
	switch cb.currentState() {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		cb.metrics.probeSuccesses.Add(1)
		if int(cb.successes.Add(1)) >= cb.successThreshold {
			cb.transition(StateHalfOpen, StateClosed)
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.lastFailureTime.Store(cb.now().UnixNano())

	switch cb.currentState() {
	case StateClosed:
		if int(cb.failures.Add(1)) >= cb.failureThreshold {
			cb.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateHalfOpen, StateOpen)
	}
}

// transition moves from one state to another if no other goroutine already
// did, resetting the counters of the state being entered.
func (cb *circuitBreaker) transition(from, to CircuitState) bool {
	if !cb.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.halfOpenProbes.Store(0)
	cb.metrics.stateTransitions.Add(1)
	cb.logger.Info("circuit breaker state transition",
		"from", from.String(),
		"to", to.String())
	return true
}

func (cb *circuitBreaker) reset() {
	if state := cb.currentState(); state != StateClosed {
		cb.transition(state, StateClosed)
		return
	}
	cb.failures.Store(0)
}
