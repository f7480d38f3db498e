package outbound

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInFlightLimiter(t *testing.T) {
	t.Run("never admits more than its capacity", func(t *testing.T) {
		limiter := NewInFlightLimiter(3)

		var current, peak atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !assert.NoError(t, limiter.Acquire(context.Background())) {
					return
				}
				c := current.Add(1)
				for {
					p := peak.Load()
					if c <= p || peak.CompareAndSwap(p, c) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				current.Add(-1)
				limiter.Release()
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, peak.Load(), int64(3))
		assert.Positive(t, peak.Load())
		assert.Equal(t, int64(0), limiter.InFlight())
	})

	t.Run("acquire honors context cancellation", func(t *testing.T) {
		limiter := NewInFlightLimiter(1)
		require.NoError(t, limiter.Acquire(context.Background()))
		defer limiter.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := limiter.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int64(1), limiter.InFlight())
	})

	t.Run("tracks in-flight attempts", func(t *testing.T) {
		limiter := NewInFlightLimiter(2)

		require.NoError(t, limiter.Acquire(context.Background()))
		assert.Equal(t, int64(1), limiter.InFlight())
		require.NoError(t, limiter.Acquire(context.Background()))
		assert.Equal(t, int64(2), limiter.InFlight())

		limiter.Release()
		assert.Equal(t, int64(1), limiter.InFlight())
		limiter.Release()
		assert.Equal(t, int64(0), limiter.InFlight())
	})

	t.Run("defaults the capacity", func(t *testing.T) {
		assert.Equal(t, int64(DefaultMaxOutstanding), NewInFlightLimiter(0).Capacity())
		assert.Equal(t, int64(DefaultMaxOutstanding), NewInFlightLimiter(-1).Capacity())
		assert.Equal(t, int64(7), NewInFlightLimiter(7).Capacity())
	})
}
