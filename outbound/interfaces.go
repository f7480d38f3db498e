package outbound

import (
	"context"

	"github.com/beamline-mq/beamline-go/contracts"
)

// Endpoint addresses a destination on the broker.
type Endpoint struct {
	Exchange   string
	RoutingKey string
}

func (e Endpoint) String() string {
	if e.Exchange == "" {
		return e.RoutingKey
	}
	return e.Exchange + "/" + e.RoutingKey
}

// MessageSender performs exactly one physical delivery attempt. Errors it
// returns are raw transport faults; the reliability layer classifies them.
type MessageSender interface {
	Send(ctx context.Context, msg *contracts.WireMessage) error
}

// ConnectionHandler lends out a live sender for the duration of one action.
// Implementations own connection recovery and channel lifecycle; callers
// never hold a sender outside the action.
type ConnectionHandler interface {
	Use(ctx context.Context, action func(sender MessageSender) error) error
}

// Serializer renders payloads into wire bodies.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	ContentType() string
}

// FailureHandler observes terminal send failures, after every retry avenue
// is spent. A typical handler diverts the envelope to a dead letter store.
type FailureHandler func(ctx context.Context, endpoint Endpoint, env *contracts.Envelope, err error)
