package outbound

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/beamline-mq/beamline-go/contracts"
)

func TestPrometheusSink(t *testing.T) {
	t.Run("counts outcomes and retries by category", func(t *testing.T) {
		sink := NewPrometheusSink(prometheus.NewRegistry())

		sink.SendSucceeded(SendEvent{Attempt: 2})
		sink.SendSucceeded(SendEvent{Attempt: 1})
		sink.SendFailed(SendEvent{Attempt: 1}, errors.New("schema rejected"))
		sink.RetryScheduled(RetryEvent{Attempt: 1, Delay: time.Second, Err: contracts.ErrSendNacked})
		sink.RetryScheduled(RetryEvent{Attempt: 2, Delay: time.Second, Err: contracts.ErrSendTimeout})

		assert.Equal(t, float64(2), testutil.ToFloat64(sink.sendsTotal.WithLabelValues("success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(sink.sendsTotal.WithLabelValues("failure")))
		assert.Equal(t, float64(1), testutil.ToFloat64(sink.retriesTotal.WithLabelValues("broker")))
		assert.Equal(t, float64(1), testutil.ToFloat64(sink.retriesTotal.WithLabelValues("overloaded")))
	})

	t.Run("mirrors the pipeline gauges", func(t *testing.T) {
		sink := NewPrometheusSink(prometheus.NewRegistry())

		sink.SendStarted(SendEvent{InFlight: 3, Sleeping: 2})

		assert.Equal(t, float64(3), testutil.ToFloat64(sink.inFlight))
		assert.Equal(t, float64(2), testutil.ToFloat64(sink.sleeping))
	})

	t.Run("registers every collector", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		sink := NewPrometheusSink(reg)
		sink.SendSucceeded(SendEvent{Attempt: 1})

		families, err := reg.Gather()
		assert.NoError(t, err)
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.Contains(t, names, "beamline_outbound_sends_total")
		assert.Contains(t, names, "beamline_outbound_attempts_per_send")
	})

	t.Run("tolerates a nil registry", func(t *testing.T) {
		sink := NewPrometheusSink(nil)

		assert.NotPanics(t, func() {
			sink.SendStarted(SendEvent{})
			sink.SendSucceeded(SendEvent{Attempt: 1})
			sink.RetryScheduled(RetryEvent{Err: contracts.ErrSendNacked})
		})
	})
}
