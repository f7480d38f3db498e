package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
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

// CircuitBreaker sheds work while a downstream dependency keeps failing.
// It sits in front of the retry loop: a breaker rejection is not a
// classified fault, so callers see it immediately instead of retrying into
// a known-bad dependency.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           State
	failures        int
	successes       int
	halfOpenInUse   int
	lastFailureTime time.Time

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	halfOpenLimit    int
	clock            clockwork.Clock
	onStateChange    func(from, to State, reason string)
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.failureThreshold = threshold
	}
}

// WithSuccessThreshold sets how many half-open successes close the breaker.
func WithSuccessThreshold(threshold int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.successThreshold = threshold
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.openTimeout = timeout
	}
}

// WithHalfOpenLimit caps concurrent probes in the half-open state.
func WithHalfOpenLimit(limit int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenLimit = limit
	}
}

// WithBreakerClock substitutes the breaker's clock.
func WithBreakerClock(clock clockwork.Clock) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if clock != nil {
			cb.clock = clock
		}
	}
}

// WithOnStateChange registers a hook invoked on every state transition.
func WithOnStateChange(fn func(from, to State, reason string)) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// NewCircuitBreaker builds a closed breaker with the given options.
func NewCircuitBreaker(opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 3,
		openTimeout:      30 * time.Second,
		halfOpenLimit:    3,
		clock:            clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn under breaker protection. When the breaker is open, fn is
// not invoked and a *CircuitBreakerError is returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		cb.record(ctx.Err())
		return ctx.Err()
	default:
	}
	err := fn()
	cb.record(err)
	return err
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(StateClosed, "reset")
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInUse = 0
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		nextProbe := cb.lastFailureTime.Add(cb.openTimeout)
		if cb.clock.Now().After(nextProbe) {
			cb.transition(StateHalfOpen, "open timeout expired")
			cb.halfOpenInUse = 1
			cb.successes = 0
			return nil
		}
		return &CircuitBreakerError{
			State:            cb.state,
			Op:               "execute",
			Failures:         cb.failures,
			FailureThreshold: cb.failureThreshold,
			LastFailure:      cb.lastFailureTime,
			NextRetry:        nextProbe,
		}

	case StateHalfOpen:
		if cb.halfOpenInUse >= cb.halfOpenLimit {
			return &CircuitBreakerError{
				State:            cb.state,
				Op:               "execute",
				Failures:         cb.failures,
				FailureThreshold: cb.failureThreshold,
				LastFailure:      cb.lastFailureTime,
				NextRetry:        cb.clock.Now().Add(time.Second),
			}
		}
		cb.halfOpenInUse++
		return nil

	default:
		return ErrUnknownState
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// A finished half-open probe frees its admission slot.
	if cb.state == StateHalfOpen && cb.halfOpenInUse > 0 {
		cb.halfOpenInUse--
	}

	if err != nil {
		cb.failures++
		cb.lastFailureTime = cb.clock.Now()

		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.failureThreshold {
				cb.transition(StateOpen,
					fmt.Sprintf("failure threshold reached (%d/%d)", cb.failures, cb.failureThreshold))
			}
		case StateHalfOpen:
			// One failed probe is enough evidence the dependency is still down.
			cb.halfOpenInUse = 0
			cb.transition(StateOpen, "probe failed")
		}
		if cb.state != StateClosed {
			cb.successes = 0
		}
		return
	}

	cb.successes++
	switch cb.state {
	case StateHalfOpen:
		if cb.successes >= cb.successThreshold {
			cb.failures = 0
			cb.halfOpenInUse = 0
			cb.transition(StateClosed,
				fmt.Sprintf("success threshold reached (%d/%d)", cb.successes, cb.successThreshold))
		}
	case StateClosed:
		cb.failures = 0
	}
}

// transition must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State, reason string) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onStateChange != nil {
		go cb.onStateChange(from, to, reason)
	}
}
