package outbound

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/beamline-mq/beamline-go/contracts"
)

// EnvelopeBuilder assembles envelopes for logical sends and materializes
// pooled wire messages for physical attempts. The envelope is built once and
// stays untouched across retries; every attempt gets its own wire message
// carrying the attempt's retry count, released back to the pool the moment
// its outcome is known.
type EnvelopeBuilder struct {
	pool     sync.Pool
	clock    clockwork.Clock
	newID    func() string
	built    atomic.Int64
	released atomic.Int64
}

// BuilderOption configures an EnvelopeBuilder.
type BuilderOption func(*EnvelopeBuilder)

// WithBuilderClock substitutes the clock stamping envelope timestamps.
func WithBuilderClock(clock clockwork.Clock) BuilderOption {
	return func(b *EnvelopeBuilder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithIDGenerator substitutes the message ID generator.
func WithIDGenerator(fn func() string) BuilderOption {
	return func(b *EnvelopeBuilder) {
		if fn != nil {
			b.newID = fn
		}
	}
}

// NewEnvelopeBuilder builds a builder stamping UUID message IDs and UTC
// timestamps.
func NewEnvelopeBuilder(opts ...BuilderOption) *EnvelopeBuilder {
	b := &EnvelopeBuilder{
		clock: clockwork.NewRealClock(),
		newID: func() string { return uuid.New().String() },
	}
	b.pool.New = func() interface{} {
		return &contracts.WireMessage{Headers: make(map[string]interface{})}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewEnvelope assembles the immutable envelope for one logical send.
func (b *EnvelopeBuilder) NewEnvelope(contentType string, body []byte) *contracts.Envelope {
	return &contracts.Envelope{
		MessageID:   b.newID(),
		ContentType: contentType,
		Timestamp:   b.clock.Now().UTC(),
		Body:        body,
	}
}

// Build materializes the wire message for one physical attempt of env. The
// retry count header records attempt-1 prior deliveries. Callers must hand
// the message back through Release exactly once.
func (b *EnvelopeBuilder) Build(env *contracts.Envelope, endpoint Endpoint, attempt int) *contracts.WireMessage {
	if attempt < 1 {
		attempt = 1
	}
	msg := b.pool.Get().(*contracts.WireMessage)
	msg.Exchange = endpoint.Exchange
	msg.RoutingKey = endpoint.RoutingKey
	msg.MessageID = env.MessageID
	msg.CorrelationID = env.CorrelationID
	msg.ContentType = env.ContentType
	msg.Timestamp = env.Timestamp
	msg.Body = env.Body
	for k, v := range env.Headers {
		msg.Headers[k] = v
	}
	msg.Headers[contracts.HeaderRetryCount] = attempt - 1
	b.built.Add(1)
	return msg
}

// Release returns a wire message to the pool after its attempt concluded.
// Releasing nil is a no-op.
func (b *EnvelopeBuilder) Release(msg *contracts.WireMessage) {
	if msg == nil {
		return
	}
	msg.Reset()
	b.released.Add(1)
	b.pool.Put(msg)
}

// Stats reports how many wire messages were built and released. The two
// counters agree whenever no attempt is in flight.
func (b *EnvelopeBuilder) Stats() (built, released int64) {
	return b.built.Load(), b.released.Load()
}
