// Package resilience provides reliability patterns for external service calls.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker implements a circuit breaker for protecting external calls.
// It opens after maxFailures accumulated failures and stays open for the
// recovery timeout, after which a bounded number of trial calls is allowed.
// The circuit closes again only after halfOpenMaxCalls consecutive trial
// successes. In the closed state each success decrements the failure count
// instead of resetting it, so a flapping dependency recovers gradually.
type Breaker struct {
	mu               sync.Mutex
	state            state
	failures         int
	maxFailures      int
	timeout          time.Duration
	halfOpenMaxCalls int
	halfOpenInflight int
	halfOpenSuccess  int
	lastFailure      time.Time
	now              func() time.Time // for testing
}

// NewBreaker creates a circuit breaker.
func NewBreaker(maxFailures int, timeout time.Duration, halfOpenMaxCalls int) *Breaker {
	if halfOpenMaxCalls < 1 {
		halfOpenMaxCalls = 1
	}
	return &Breaker{
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		now:              time.Now,
	}
}

// Execute runs fn if the circuit allows it.
// Returns ErrCircuitOpen without invoking fn if the circuit is open, or if
// the half-open trial budget is already taken by in-flight calls.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return nil
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.lastFailure) >= b.timeout {
			b.state = stateHalfOpen
			b.halfOpenInflight = 1
			b.halfOpenSuccess = 0
			return true
		}
		return false
	case stateHalfOpen:
		if b.halfOpenInflight >= b.halfOpenMaxCalls {
			return false
		}
		b.halfOpenInflight++
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.lastFailure = b.now()
	switch b.state {
	case stateHalfOpen:
		b.state = stateOpen
		b.halfOpenInflight = 0
		b.halfOpenSuccess = 0
	default:
		b.failures++
		if b.failures >= b.maxFailures {
			b.state = stateOpen
		}
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	switch b.state {
	case stateHalfOpen:
		b.halfOpenSuccess++
		b.halfOpenInflight--
		if b.halfOpenSuccess >= b.halfOpenMaxCalls {
			b.state = stateClosed
			b.failures = 0
			b.halfOpenInflight = 0
			b.halfOpenSuccess = 0
		}
	default:
		// Gradual recovery: one success pays off one failure.
		if b.failures > 0 {
			b.failures--
		}
	}
}
