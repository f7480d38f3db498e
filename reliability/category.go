package reliability

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/beamline-mq/beamline-go/contracts"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Category identifies a class of send fault that shares one retry treatment.
type Category int

const (
	// Unclassified faults are recognized by no policy and never retried.
	Unclassified Category = iota
	// Overloaded covers broker or transport saturation, including timeouts.
	Overloaded
	// Network covers transient connectivity loss between client and broker.
	Network
	// Broker covers transient broker-side faults such as a service that is
	// not ready yet.
	Broker
)

func (c Category) String() string {
	switch c {
	case Overloaded:
		return "overloaded"
	case Network:
		return "network"
	case Broker:
		return "broker"
	default:
		return "unclassified"
	}
}

// networkDetails are textual fragments identifying a network-level fault
// when the error kind alone is not conclusive.
var networkDetails = []string{
	"name could not be resolved",
	"no such host",
	"connection refused",
	"connection reset",
	"broken pipe",
}

// IsOverload reports whether err signals broker or transport saturation.
// Timeouts land here rather than in the network category: under pressure the
// first visible symptom is usually a missed deadline, and the overload
// policy holds first claim on ambiguous faults.
func IsOverload(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, contracts.ErrSendTimeout) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Code == amqp.ResourceError {
		return true
	}
	return false
}

// IsNetwork reports whether err signals a transient connectivity fault.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	detail := strings.ToLower(err.Error())
	for _, fragment := range networkDetails {
		if strings.Contains(detail, fragment) {
			return true
		}
	}
	return false
}

// IsBroker reports whether err signals a transient broker-side fault.
func IsBroker(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, contracts.ErrSendNacked) ||
		errors.Is(err, contracts.ErrBrokerNotReady) ||
		errors.Is(err, contracts.ErrSendReturned) {
		return true
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		switch amqpErr.Code {
		case amqp.ConnectionForced, amqp.InternalError:
			return true
		}
	}
	return false
}

// Classify maps err to the category the default policy chain assigns,
// honoring the chain's precedence order: overload, then network, then
// broker. Anything else is Unclassified.
func Classify(err error) Category {
	switch {
	case err == nil:
		return Unclassified
	case IsOverload(err):
		return Overloaded
	case IsNetwork(err):
		return Network
	case IsBroker(err):
		return Broker
	default:
		return Unclassified
	}
}
