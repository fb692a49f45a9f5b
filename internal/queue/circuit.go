// internal/queue/circuit.go
package queue

import (
	"sync"
	"time"

	"notification-engine/internal/common/metrics"
	"notification-engine/internal/models"
)

// CircuitState represents the current state of a channel's breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitHalfOpen:
		return "half-open"
	case CircuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker protects a provider from being hammered while it is
// failing. Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	state           CircuitState
	failures        int
	successCount    int
	lastFailureTime time.Time
}

func NewCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 2
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            CircuitClosed,
	}
}

// Allow reports whether an attempt may proceed. An open circuit moves to
// half-open after the recovery timeout and lets one attempt through.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successCount = 0
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.failures = cb.failureThreshold
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// CircuitSet holds one breaker per channel so one failing provider does
// not block the others.
type CircuitSet struct {
	mu       sync.Mutex
	breakers map[models.Channel]*CircuitBreaker

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration
}

func NewCircuitSet(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *CircuitSet {
	return &CircuitSet{
		breakers:         make(map[models.Channel]*CircuitBreaker),
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

func (s *CircuitSet) For(channel models.Channel) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.breakers[channel]
	if !ok {
		cb = NewCircuitBreaker(s.failureThreshold, s.successThreshold, s.recoveryTimeout)
		s.breakers[channel] = cb
	}
	return cb
}

// Publish exports the state of every breaker to the circuit gauge.
func (s *CircuitSet) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for channel, cb := range s.breakers {
		metrics.CircuitState.WithLabelValues(string(channel)).Set(float64(cb.State()))
	}
}
