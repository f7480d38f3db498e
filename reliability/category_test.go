package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"

	"github.com/beamline-mq/beamline-go/contracts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil error", nil, Unclassified},
		{"deadline exceeded", context.DeadlineExceeded, Overloaded},
		{"send timeout", contracts.ErrSendTimeout, Overloaded},
		{"wrapped send timeout", fmt.Errorf("publish: %w", contracts.ErrSendTimeout), Overloaded},
		{"amqp resource error", &amqp.Error{Code: amqp.ResourceError, Reason: "resource-error"}, Overloaded},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "broker.local"}, Network},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("unreachable")}, Network},
		{"refused by text", errors.New("dial tcp 10.0.0.1:5672: connection refused"), Network},
		{"unresolvable by text", errors.New("the server name could not be resolved"), Network},
		{"reset by text", errors.New("read tcp: connection reset by peer"), Network},
		{"channel closed", amqp.ErrClosed, Network},
		{"nacked", contracts.ErrSendNacked, Broker},
		{"broker not ready", contracts.ErrBrokerNotReady, Broker},
		{"returned", contracts.ErrSendReturned, Broker},
		{"connection forced", &amqp.Error{Code: amqp.ConnectionForced, Reason: "connection-forced"}, Broker},
		{"internal error", &amqp.Error{Code: amqp.InternalError, Reason: "internal-error"}, Broker},
		{"cancellation", context.Canceled, Unclassified},
		{"access refused", &amqp.Error{Code: amqp.AccessRefused, Reason: "access-refused"}, Unclassified},
		{"arbitrary error", errors.New("marshaling failed"), Unclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	t.Run("timeout wins over network", func(t *testing.T) {
		// A timed-out DNS lookup is both a timeout and a DNS failure; the
		// overload category holds first claim.
		err := &net.DNSError{Err: "lookup timed out", Name: "broker.local", IsTimeout: true}
		assert.Equal(t, Overloaded, Classify(err))
	})

	t.Run("classification sees through send errors", func(t *testing.T) {
		err := &contracts.SendError{
			Exchange:   "orders",
			RoutingKey: "order.created",
			MessageID:  "m-1",
			Attempt:    3,
			Err:        contracts.ErrSendNacked,
			Timestamp:  time.Now(),
		}
		assert.Equal(t, Broker, Classify(err))
	})
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "overloaded", Overloaded.String())
	assert.Equal(t, "network", Network.String())
	assert.Equal(t, "broker", Broker.String())
	assert.Equal(t, "unclassified", Unclassified.String())
	assert.Equal(t, "unclassified", Category(42).String())
}
