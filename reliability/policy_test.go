package reliability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline-mq/beamline-go/contracts"
)

func TestCategoryPolicy(t *testing.T) {
	t.Run("never matches nil", func(t *testing.T) {
		p := OverloadPolicy()
		assert.False(t, p.Matches(nil))
	})

	t.Run("overload caps total attempts", func(t *testing.T) {
		p := OverloadPolicy()

		for attempt := 1; attempt < DefaultOverloadAttempts; attempt++ {
			assert.True(t, p.ShouldRetry(attempt, contracts.ErrSendTimeout), "attempt %d", attempt)
		}
		assert.False(t, p.ShouldRetry(DefaultOverloadAttempts, contracts.ErrSendTimeout))
	})

	t.Run("unlimited policies retry forever", func(t *testing.T) {
		assert.True(t, NetworkPolicy().ShouldRetry(1_000_000, errors.New("connection refused")))
		assert.True(t, BrokerPolicy().ShouldRetry(1_000_000, contracts.ErrSendNacked))
	})

	t.Run("built-in delays", func(t *testing.T) {
		assert.Equal(t, DefaultNetworkDelay, NetworkPolicy().NextDelay(7))
		assert.Equal(t, DefaultBrokerDelay, BrokerPolicy().NextDelay(7))
		assert.InDelta(t, 2.14358881, OverloadPolicy().NextDelay(1).Seconds(), 1e-6)
	})

	t.Run("exposes its category", func(t *testing.T) {
		assert.Equal(t, Overloaded, OverloadPolicy().Category())
		assert.Equal(t, Network, NetworkPolicy().Category())
		assert.Equal(t, Broker, BrokerPolicy().Category())
	})
}

func TestNoRetry(t *testing.T) {
	p := NoRetry()

	assert.True(t, p.Matches(errors.New("anything")))
	assert.False(t, p.Matches(nil))
	assert.False(t, p.ShouldRetry(1, errors.New("anything")))
	assert.Equal(t, time.Duration(0), p.NextDelay(1))
}

func TestChain(t *testing.T) {
	matchFoo := func(err error) bool { return strings.Contains(err.Error(), "foo") }
	matchAll := func(err error) bool { return true }

	t.Run("first match wins", func(t *testing.T) {
		first := NewCategoryPolicy(Network, matchAll, Unlimited, FixedBackoff{Interval: time.Second})
		second := NewCategoryPolicy(Broker, matchAll, Unlimited, FixedBackoff{Interval: time.Minute})
		chain := NewChain(first, second)

		p, ok := chain.Match(errors.New("anything"))
		require.True(t, ok)
		assert.Same(t, first, p)
		assert.Equal(t, time.Second, p.NextDelay(1))
	})

	t.Run("falls through to later policies", func(t *testing.T) {
		chain := NewChain(
			NewCategoryPolicy(Network, matchFoo, Unlimited, FixedBackoff{}),
			NewCategoryPolicy(Broker, matchAll, Unlimited, FixedBackoff{}),
		)

		p, ok := chain.Match(errors.New("bar"))
		require.True(t, ok)
		assert.Equal(t, Broker, p.(*CategoryPolicy).Category())
	})

	t.Run("unmatched faults stay unmatched", func(t *testing.T) {
		chain := NewChain(NewCategoryPolicy(Network, matchFoo, Unlimited, FixedBackoff{}))

		p, ok := chain.Match(errors.New("bar"))
		assert.False(t, ok)
		assert.Nil(t, p)
	})

	t.Run("nil error matches nothing", func(t *testing.T) {
		_, ok := DefaultChain().Match(nil)
		assert.False(t, ok)
	})

	t.Run("default chain gives timeouts to the overload policy", func(t *testing.T) {
		p, ok := DefaultChain().Match(context.DeadlineExceeded)
		require.True(t, ok)
		assert.Equal(t, Overloaded, p.(*CategoryPolicy).Category())
	})

	t.Run("default chain leaves cancellation unmatched", func(t *testing.T) {
		_, ok := DefaultChain().Match(context.Canceled)
		assert.False(t, ok)
	})

	t.Run("combine is left-biased", func(t *testing.T) {
		eager := NewCategoryPolicy(Network, matchAll, Unlimited, FixedBackoff{Interval: time.Millisecond})
		fallback := NoRetry()

		p, ok := Combine(eager, fallback).Match(errors.New("boom"))
		require.True(t, ok)
		assert.True(t, p.ShouldRetry(99, errors.New("boom")))

		p, ok = Combine(fallback, eager).Match(errors.New("boom"))
		require.True(t, ok)
		assert.False(t, p.ShouldRetry(1, errors.New("boom")))
	})

	t.Run("extend appends at lower precedence", func(t *testing.T) {
		base := NewChain(NewCategoryPolicy(Network, matchFoo, Unlimited, FixedBackoff{}))
		extended := base.Extend(NoRetry())

		_, ok := base.Match(errors.New("bar"))
		assert.False(t, ok)

		p, ok := extended.Match(errors.New("bar"))
		require.True(t, ok)
		assert.False(t, p.ShouldRetry(1, errors.New("bar")))

		p, ok = extended.Match(errors.New("foo"))
		require.True(t, ok)
		assert.True(t, p.ShouldRetry(1, errors.New("foo")))
	})
}
