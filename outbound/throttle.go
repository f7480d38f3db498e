package outbound

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxOutstanding is the throttle capacity used when none is given.
const DefaultMaxOutstanding = 64

// InFlightLimiter bounds how many physical attempts may be on the wire at
// once. Every attempt, first or retry, claims one slot before its message is
// built and returns it as soon as the outcome is known, so a logical send
// never holds a slot across a backoff wait.
type InFlightLimiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
}

// NewInFlightLimiter builds a limiter admitting up to max concurrent
// attempts. Non-positive max selects DefaultMaxOutstanding.
func NewInFlightLimiter(max int) *InFlightLimiter {
	if max <= 0 {
		max = DefaultMaxOutstanding
	}
	return &InFlightLimiter{
		sem:      semaphore.NewWeighted(int64(max)),
		capacity: int64(max),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *InFlightLimiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.inFlight.Add(1)
	return nil
}

// Release returns a slot claimed by Acquire.
func (l *InFlightLimiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// InFlight reports how many attempts currently hold a slot.
func (l *InFlightLimiter) InFlight() int64 { return l.inFlight.Load() }

// Capacity reports the configured slot count.
func (l *InFlightLimiter) Capacity() int64 { return l.capacity }
