package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWireMessageRetryCount(t *testing.T) {
	t.Run("reads the stamped count", func(t *testing.T) {
		msg := &WireMessage{Headers: map[string]interface{}{HeaderRetryCount: 3}}
		assert.Equal(t, 3, msg.RetryCount())
	})

	t.Run("defaults to zero without headers", func(t *testing.T) {
		msg := &WireMessage{}
		assert.Equal(t, 0, msg.RetryCount())
	})

	t.Run("defaults to zero when the header is missing", func(t *testing.T) {
		msg := &WireMessage{Headers: map[string]interface{}{}}
		assert.Equal(t, 0, msg.RetryCount())
	})

	t.Run("defaults to zero on a malformed header", func(t *testing.T) {
		msg := &WireMessage{Headers: map[string]interface{}{HeaderRetryCount: "three"}}
		assert.Equal(t, 0, msg.RetryCount())
	})
}

func TestWireMessageReset(t *testing.T) {
	msg := &WireMessage{
		Exchange:      "orders",
		RoutingKey:    "order.created",
		MessageID:     "m-1",
		CorrelationID: "c-1",
		ContentType:   "application/json",
		Timestamp:     time.Now(),
		Headers:       map[string]interface{}{HeaderRetryCount: 2, "x-tenant": "acme"},
		Body:          []byte(`{"n":1}`),
	}

	headers := msg.Headers
	msg.Reset()

	assert.Empty(t, msg.Exchange)
	assert.Empty(t, msg.RoutingKey)
	assert.Empty(t, msg.MessageID)
	assert.Empty(t, msg.CorrelationID)
	assert.Empty(t, msg.ContentType)
	assert.True(t, msg.Timestamp.IsZero())
	assert.Nil(t, msg.Body)

	// The map survives reset so pooled messages keep their allocation.
	assert.NotNil(t, msg.Headers)
	assert.Empty(t, msg.Headers)
	headers["probe"] = true
	assert.Equal(t, true, msg.Headers["probe"])
}
