package outbound

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/beamline-mq/beamline-go/reliability"
)

// PrometheusSink exports pipeline events as Prometheus metrics.
type PrometheusSink struct {
	sendsTotal   *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	attempts     prometheus.Histogram
	retryDelay   prometheus.Histogram
	inFlight     prometheus.Gauge
	sleeping     prometheus.Gauge
}

// NewPrometheusSink creates the pipeline metrics and registers them with
// registry. A nil registry leaves the metrics unregistered, which is useful
// under test.
func NewPrometheusSink(registry prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		sendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beamline_outbound_sends_total",
				Help: "Terminal send outcomes",
			},
			[]string{"outcome"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beamline_outbound_retries_total",
				Help: "Scheduled retries by fault category",
			},
			[]string{"category"},
		),
		attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beamline_outbound_attempts_per_send",
				Help:    "Physical attempts needed per successful send",
				Buckets: []float64{1, 2, 3, 5, 8, 13},
			},
		),
		retryDelay: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "beamline_outbound_retry_delay_seconds",
				Help:    "Backoff delays scheduled before retries",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 16),
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beamline_outbound_in_flight",
				Help: "Attempts currently holding a throttle slot",
			},
		),
		sleeping: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beamline_outbound_sleeping",
				Help: "Logical sends currently waiting out a backoff",
			},
		),
	}

	if registry != nil {
		registry.MustRegister(
			s.sendsTotal,
			s.retriesTotal,
			s.attempts,
			s.retryDelay,
			s.inFlight,
			s.sleeping,
		)
	}

	return s
}

func (s *PrometheusSink) SendStarted(e SendEvent) {
	s.inFlight.Set(float64(e.InFlight))
	s.sleeping.Set(float64(e.Sleeping))
}

func (s *PrometheusSink) SendSucceeded(e SendEvent) {
	s.sendsTotal.WithLabelValues("success").Inc()
	s.attempts.Observe(float64(e.Attempt))
}

func (s *PrometheusSink) SendFailed(e SendEvent, err error) {
	s.sendsTotal.WithLabelValues("failure").Inc()
}

func (s *PrometheusSink) RetryScheduled(e RetryEvent) {
	s.retriesTotal.WithLabelValues(reliability.Classify(e.Err).String()).Inc()
	s.retryDelay.Observe(e.Delay.Seconds())
}
