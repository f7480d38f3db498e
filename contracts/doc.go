// Package contracts defines the shared wire types and fault taxonomy of the
// beamline outbound core.
//
// The two central types are:
//   - Envelope: the immutable serialized package of one logical send
//   - WireMessage: the per-attempt transport object derived from an Envelope
//
// The fault sentinels (ErrBrokerNotReady, ErrSendNacked, ErrSendTimeout,
// ErrSendReturned) are the vocabulary spoken between transport
// implementations and the reliability package's fault classifiers. Custom
// ConnectionHandler implementations should wrap their faults around these
// sentinels so the default retry policies recognize them.
package contracts
