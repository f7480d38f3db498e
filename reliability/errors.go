package reliability

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnknownState is returned when a breaker reaches an impossible state.
	ErrUnknownState = errors.New("reliability: unknown circuit breaker state")
)

// CircuitBreakerError reports a request rejected by an open or saturated
// breaker. It carries enough context for callers to log and for operators
// to see when traffic will be admitted again.
type CircuitBreakerError struct {
	State            State
	Op               string
	Failures         int
	FailureThreshold int
	LastFailure      time.Time
	NextRetry        time.Time
}

func (e *CircuitBreakerError) Error() string {
	switch e.State {
	case StateOpen:
		retryIn := time.Until(e.NextRetry).Round(time.Second)
		return fmt.Sprintf("reliability: circuit open, %s blocked (failures=%d/%d, retry in %v)",
			e.Op, e.Failures, e.FailureThreshold, retryIn)
	case StateHalfOpen:
		return fmt.Sprintf("reliability: circuit half-open, %s limited", e.Op)
	default:
		return fmt.Sprintf("reliability: circuit breaker rejected %s in state %v", e.Op, e.State)
	}
}

// IsBreakerRejection reports whether err is a circuit breaker rejection
// rather than a fault from the protected operation. Rejections are
// deliberately unclassified: retrying into an open breaker would defeat it.
func IsBreakerRejection(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
