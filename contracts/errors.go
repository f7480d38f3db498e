package contracts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBrokerNotReady is surfaced when the broker accepted the connection
	// but cannot service sends yet (channel setup, recovering topology).
	ErrBrokerNotReady = errors.New("beamline: broker not ready")

	// ErrSendNacked is surfaced when the broker explicitly refused a
	// delivery via a negative acknowledgment.
	ErrSendNacked = errors.New("beamline: message was nacked by broker")

	// ErrSendTimeout is surfaced when no broker confirmation arrived within
	// the configured window.
	ErrSendTimeout = errors.New("beamline: timed out waiting for broker confirmation")

	// ErrSendReturned is surfaced when the broker bounced an unroutable
	// message back to the sender.
	ErrSendReturned = errors.New("beamline: message returned as unroutable")
)

// SendError describes a failed physical send attempt.
type SendError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	MessageID  string    // Message identifier
	Attempt    int       // 1-based physical attempt number
	Err        error     // Underlying fault
	Timestamp  time.Time // When the attempt failed
}

func (e *SendError) Error() string {
	return fmt.Sprintf("beamline send error: attempt %d to %s/%s for message %s: %v",
		e.Attempt, e.Exchange, e.RoutingKey, e.MessageID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
