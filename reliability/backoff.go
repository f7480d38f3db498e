package reliability

import (
	"math"
	"time"
)

// Backoff computes the wait before the next retry attempt.
type Backoff interface {
	// Delay returns the wait duration after the given 1-based attempt failed.
	Delay(attempt int) time.Duration
}

// Defaults for the built-in backoff strategies.
const (
	DefaultSlot         = time.Second
	DefaultFactor       = 1.1
	DefaultExponent     = 8
	DefaultCeiling      = 13
	DefaultNetworkDelay = 5 * time.Second
	DefaultBrokerDelay  = 10 * time.Second
)

// ExponentialBackoff grows the delay as Slot × Factor^(Exponent×attempt) and
// saturates once attempt reaches Ceiling, so a long-running retry loop never
// waits longer than the ceiling delay. Zero fields fall back to the package
// defaults, which saturate at roughly 5.6 hours.
type ExponentialBackoff struct {
	Slot     time.Duration
	Factor   float64
	Exponent int
	Ceiling  int
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	slot := b.Slot
	if slot <= 0 {
		slot = DefaultSlot
	}
	factor := b.Factor
	if factor <= 1 {
		factor = DefaultFactor
	}
	exponent := b.Exponent
	if exponent <= 0 {
		exponent = DefaultExponent
	}
	ceiling := b.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > ceiling {
		attempt = ceiling
	}
	return time.Duration(float64(slot) * math.Pow(factor, float64(exponent*attempt)))
}

// FixedBackoff waits the same interval after every failed attempt.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration {
	if b.Interval < 0 {
		return 0
	}
	return b.Interval
}
