package outbound

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)
	endpoint := Endpoint{Exchange: "orders", RoutingKey: "order.created"}

	sink.SendStarted(SendEvent{Endpoint: endpoint, MessageID: "m-1", Attempt: 1, InFlight: 1})
	sink.RetryScheduled(RetryEvent{Endpoint: endpoint, MessageID: "m-1", Attempt: 1, Delay: time.Second, Err: errors.New("connection refused")})
	sink.SendSucceeded(SendEvent{Endpoint: endpoint, MessageID: "m-1", Attempt: 2})
	sink.SendFailed(SendEvent{Endpoint: endpoint, MessageID: "m-2", Attempt: 1}, errors.New("schema rejected"))

	out := buf.String()
	assert.Contains(t, out, "send attempt started")
	assert.Contains(t, out, "send retry scheduled")
	assert.Contains(t, out, "send succeeded")
	assert.Contains(t, out, "send failed")
	assert.Contains(t, out, "orders/order.created")
	assert.Contains(t, out, "m-1")
}

func TestMultiSink(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	sink := MultiSink(a, b)

	sink.SendStarted(SendEvent{Attempt: 1})
	sink.SendSucceeded(SendEvent{Attempt: 1})
	sink.SendFailed(SendEvent{Attempt: 1}, errors.New("x"))
	sink.RetryScheduled(RetryEvent{Attempt: 1})

	for _, s := range []*recordingSink{a, b} {
		assert.Len(t, s.started, 1)
		assert.Len(t, s.succeeded, 1)
		assert.Len(t, s.failed, 1)
		assert.Len(t, s.retries, 1)
	}
}

func TestEndpointString(t *testing.T) {
	assert.Equal(t, "orders/order.created", Endpoint{Exchange: "orders", RoutingKey: "order.created"}.String())
	assert.Equal(t, "order.created", Endpoint{RoutingKey: "order.created"}.String())
}
