// Package rabbitmq carries beamline messages over an AMQP 0.9.1 broker.
//
// This package includes:
//   - ConnectionManager: Manages the broker connection with automatic reconnection
//   - ChannelPool: Provides confirm-mode channel pooling with idle timeout
//   - Handler: Lends confirmed senders to the outbound pipeline
//
// Every publish runs in confirm mode with mandatory routing, so each send
// ends in exactly one verdict: acknowledged, nacked, returned unroutable,
// or timed out waiting. Verdicts surface as the contracts sentinels, which
// keeps AMQP details out of the retry layer.
package rabbitmq
