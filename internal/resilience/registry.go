package resilience

import (
	"sync"
	"time"
)

// Registry hands out one Breaker per logical call type (classification,
// cypher generation, verification, ...). Breakers are shared process-wide:
// repeated failures from one request open the circuit for every concurrent
// request making the same call type.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	maxFailures      int
	timeout          time.Duration
	halfOpenMaxCalls int
}

// NewRegistry creates a Registry; every Breaker it creates shares the
// given thresholds.
func NewRegistry(maxFailures int, timeout time.Duration, halfOpenMaxCalls int) *Registry {
	return &Registry{
		breakers:         make(map[string]*Breaker),
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
	}
}

// Get returns the Breaker for the given service name, creating it on first use.
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[service]
	if !ok {
		b = NewBreaker(r.maxFailures, r.timeout, r.halfOpenMaxCalls)
		r.breakers[service] = b
	}
	return b
}
