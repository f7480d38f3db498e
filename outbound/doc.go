// Package outbound implements the throttled asynchronous send pipeline.
//
// A logical send is serialized exactly once into an immutable Envelope.
// Each physical attempt then claims a throttle slot, materializes a pooled
// WireMessage stamped with the attempt's retry count, and hands it to the
// connection handler. Slot and message are both returned before the retry
// decision runs, so a logical send waiting out a backoff consumes no
// capacity.
//
// The pieces:
//   - Pipeline: Send/SendEnvelope drive attempts through the reliability
//     executor until a terminal outcome
//   - InFlightLimiter: bounds concurrent physical attempts
//   - EnvelopeBuilder: assembles envelopes and pools wire messages
//   - EventSink: observation points (LogSink, PrometheusSink, MultiSink)
//   - ConnectionHandler / MessageSender: the transport seam; see the
//     rabbitmq implementation under internal
//
// Callers of Pipeline.Send block until delivery is acknowledged or every
// retry avenue is spent; transient faults never escape the pipeline.
package outbound
