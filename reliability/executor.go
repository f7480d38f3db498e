package reliability

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Executor drives an operation through a policy chain until it succeeds,
// its fault category is exhausted, or an unclassified fault occurs. Only
// terminal outcomes are returned to the caller; recognized transient faults
// stay inside the loop.
type Executor struct {
	chain    *Chain
	clock    clockwork.Clock
	logger   *slog.Logger
	onRetry  func(attempt int, delay time.Duration, err error)
	sleeping *atomic.Int64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock substitutes the clock used for backoff waits.
func WithClock(clock clockwork.Clock) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithExecutorLogger substitutes the executor's logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithOnRetry registers a hook observing every scheduled retry, invoked with
// the attempt that failed, the wait before the next one, and the fault.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) ExecutorOption {
	return func(e *Executor) {
		e.onRetry = fn
	}
}

// WithSleepingGauge lets several executors account their backoff waits on
// one shared counter. The pipeline hands each logical send its own executor
// but wants a single sleeping gauge across them.
func WithSleepingGauge(gauge *atomic.Int64) ExecutorOption {
	return func(e *Executor) {
		if gauge != nil {
			e.sleeping = gauge
		}
	}
}

// NewExecutor builds an executor over the given chain. A nil chain selects
// DefaultChain.
func NewExecutor(chain *Chain, opts ...ExecutorOption) *Executor {
	e := &Executor{
		chain:    chain,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		sleeping: new(atomic.Int64),
	}
	if e.chain == nil {
		e.chain = DefaultChain()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chain returns the policy chain the executor dispatches on.
func (e *Executor) Chain() *Chain { return e.chain }

// Sleeping reports how many executions are currently waiting out a backoff
// delay.
func (e *Executor) Sleeping() int64 { return e.sleeping.Load() }

// Execute runs op, retrying per the policy chain. The attempt number passed
// to op is 1-based and counts every physical invocation.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context, attempt int) error) error {
	_, err := ExecuteWithResult(ctx, e, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	}, nil)
	return err
}

// ExecuteWithResult runs op through e's policy chain and returns its result.
// When op fails, the first policy matching the fault decides whether another
// attempt is permitted and how long to wait; a fault no policy matches, or
// one whose category is exhausted, is returned as-is with the zero T. A
// non-nil onSuccess observes the result before it is returned.
//
// Cancelling ctx aborts both a backoff wait and the loop itself; op is
// responsible for honoring ctx during the attempt.
func ExecuteWithResult[T any](ctx context.Context, e *Executor, op func(ctx context.Context, attempt int) (T, error), onSuccess func(T)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		result, err := op(ctx, attempt)
		if err == nil {
			if onSuccess != nil {
				onSuccess(result)
			}
			return result, nil
		}

		policy, ok := e.chain.Match(err)
		if !ok {
			e.logger.Debug("fault not matched by any retry policy",
				"attempt", attempt,
				"error", err)
			return zero, err
		}
		if !policy.ShouldRetry(attempt, err) {
			e.logger.Debug("retry attempts exhausted",
				"attempt", attempt,
				"error", err)
			return zero, err
		}

		delay := policy.NextDelay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt, delay, err)
		}
		e.logger.Debug("retry scheduled",
			"attempt", attempt,
			"delay", delay,
			"error", err)

		e.sleeping.Add(1)
		select {
		case <-e.clock.After(delay):
			e.sleeping.Add(-1)
		case <-ctx.Done():
			e.sleeping.Add(-1)
			return zero, ctx.Err()
		}
	}
}
