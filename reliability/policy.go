package reliability

import "time"

// Unlimited disables the attempt bound of a policy.
const Unlimited = 0

// DefaultOverloadAttempts bounds the total attempts made against a
// saturated broker, the first attempt included.
const DefaultOverloadAttempts = 10

// Policy decides whether and how long to wait before retrying a fault it
// recognizes. ShouldRetry and NextDelay are only meaningful for faults the
// policy Matches; Chain performs that dispatch.
type Policy interface {
	// Matches reports whether the policy recognizes the fault.
	Matches(err error) bool
	// ShouldRetry reports whether another attempt is permitted after the
	// given 1-based attempt failed.
	ShouldRetry(attempt int, err error) bool
	// NextDelay returns the wait before the attempt following the given one.
	NextDelay(attempt int) time.Duration
}

// CategoryPolicy binds a fault predicate to an attempt bound and a backoff
// strategy. A maxAttempts of Unlimited permits retrying forever.
type CategoryPolicy struct {
	category    Category
	matches     func(error) bool
	maxAttempts int
	backoff     Backoff
}

func NewCategoryPolicy(category Category, matches func(error) bool, maxAttempts int, backoff Backoff) *CategoryPolicy {
	return &CategoryPolicy{
		category:    category,
		matches:     matches,
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Category returns the fault category the policy handles.
func (p *CategoryPolicy) Category() Category { return p.category }

func (p *CategoryPolicy) Matches(err error) bool {
	return err != nil && p.matches(err)
}

func (p *CategoryPolicy) ShouldRetry(attempt int, _ error) bool {
	if p.maxAttempts == Unlimited {
		return true
	}
	return attempt < p.maxAttempts
}

func (p *CategoryPolicy) NextDelay(attempt int) time.Duration {
	return p.backoff.Delay(attempt)
}

// OverloadPolicy retries saturation faults with exponential backoff, capped
// at DefaultOverloadAttempts total attempts. Hammering a broker that is
// already shedding load only deepens the outage, so this is the one built-in
// policy with a bound.
func OverloadPolicy() *CategoryPolicy {
	return NewCategoryPolicy(Overloaded, IsOverload, DefaultOverloadAttempts, ExponentialBackoff{})
}

// NetworkPolicy retries connectivity faults forever at a short fixed
// interval, riding out interface flaps and DNS hiccups.
func NetworkPolicy() *CategoryPolicy {
	return NewCategoryPolicy(Network, IsNetwork, Unlimited, FixedBackoff{Interval: DefaultNetworkDelay})
}

// BrokerPolicy retries broker-side faults forever at a medium fixed
// interval, long enough for a restarting broker to come back.
func BrokerPolicy() *CategoryPolicy {
	return NewCategoryPolicy(Broker, IsBroker, Unlimited, FixedBackoff{Interval: DefaultBrokerDelay})
}

// NoRetry matches every fault and never permits another attempt.
func NoRetry() Policy { return noRetry{} }

type noRetry struct{}

func (noRetry) Matches(err error) bool      { return err != nil }
func (noRetry) ShouldRetry(int, error) bool { return false }
func (noRetry) NextDelay(int) time.Duration { return 0 }

// Chain is an ordered sequence of policies dispatched first-match-wins: a
// fault is governed entirely by the first policy that matches it, regardless
// of what later policies would have decided. A fault no policy matches is
// unclassified and must not be retried.
type Chain struct {
	policies []Policy
}

// NewChain builds a chain evaluating the given policies in order.
func NewChain(policies ...Policy) *Chain {
	return &Chain{policies: policies}
}

// DefaultChain orders the built-in policies by precedence: overload first,
// then network, then broker. A timeout during a network outage is therefore
// treated as overload.
func DefaultChain() *Chain {
	return NewChain(OverloadPolicy(), NetworkPolicy(), BrokerPolicy())
}

// Combine returns a chain asking a first and falling back to b only for
// faults a does not match.
func Combine(a, b Policy) *Chain {
	return NewChain(a, b)
}

// Match returns the first policy recognizing err, or false when the fault is
// unclassified.
func (c *Chain) Match(err error) (Policy, bool) {
	if err == nil {
		return nil, false
	}
	for _, p := range c.policies {
		if p.Matches(err) {
			return p, true
		}
	}
	return nil, false
}

// Extend returns a new chain with the given policies appended at lower
// precedence. The receiver is not modified.
func (c *Chain) Extend(policies ...Policy) *Chain {
	combined := make([]Policy, 0, len(c.policies)+len(policies))
	combined = append(combined, c.policies...)
	combined = append(combined, policies...)
	return &Chain{policies: combined}
}
