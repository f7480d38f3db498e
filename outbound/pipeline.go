package outbound

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/beamline-mq/beamline-go/contracts"
	"github.com/beamline-mq/beamline-go/reliability"
)

// ErrNilHandler is returned when a pipeline is built without a connection
// handler.
var ErrNilHandler = errors.New("outbound: connection handler is required")

// Pipeline is the asynchronous send path: serialize once, then drive
// physical attempts through the throttle and the retry executor until a
// terminal outcome. Callers only ever see terminal outcomes; transient
// faults stay inside the loop.
//
// A Pipeline is safe for concurrent use.
type Pipeline struct {
	handler        ConnectionHandler
	limiter        *InFlightLimiter
	builder        *EnvelopeBuilder
	chain          *reliability.Chain
	breaker        *reliability.CircuitBreaker
	serializer     Serializer
	logger         *slog.Logger
	sink           EventSink
	failureHandler FailureHandler
	clock          clockwork.Clock
	newID          func() string
	sleeping       atomic.Int64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMaxOutstanding bounds concurrent physical attempts.
func WithMaxOutstanding(max int) PipelineOption {
	return func(p *Pipeline) {
		p.limiter = NewInFlightLimiter(max)
	}
}

// WithChain substitutes the policy chain governing retries.
func WithChain(chain *reliability.Chain) PipelineOption {
	return func(p *Pipeline) {
		if chain != nil {
			p.chain = chain
		}
	}
}

// WithBreaker guards deliveries with a circuit breaker. Breaker rejections
// are unclassified faults: they surface immediately instead of being
// retried into an open circuit.
func WithBreaker(breaker *reliability.CircuitBreaker) PipelineOption {
	return func(p *Pipeline) {
		p.breaker = breaker
	}
}

// WithSerializer substitutes the payload serializer.
func WithSerializer(s Serializer) PipelineOption {
	return func(p *Pipeline) {
		if s != nil {
			p.serializer = s
		}
	}
}

// WithEventSink substitutes the pipeline's event sink.
func WithEventSink(sink EventSink) PipelineOption {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// WithPipelineLogger substitutes the pipeline's logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFailureHandler registers a hook for terminal send failures.
func WithFailureHandler(fn FailureHandler) PipelineOption {
	return func(p *Pipeline) {
		p.failureHandler = fn
	}
}

// WithPipelineClock substitutes the clock behind envelope timestamps and
// backoff waits.
func WithPipelineClock(clock clockwork.Clock) PipelineOption {
	return func(p *Pipeline) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithPipelineIDGenerator substitutes the message ID generator.
func WithPipelineIDGenerator(fn func() string) PipelineOption {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// NewPipeline builds a send pipeline over handler.
func NewPipeline(handler ConnectionHandler, opts ...PipelineOption) (*Pipeline, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	p := &Pipeline{
		handler:    handler,
		limiter:    NewInFlightLimiter(DefaultMaxOutstanding),
		chain:      reliability.DefaultChain(),
		serializer: JSONSerializer{},
		logger:     slog.Default(),
		sink:       NopSink{},
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.builder = NewEnvelopeBuilder(WithBuilderClock(p.clock), WithIDGenerator(p.newID))
	return p, nil
}

// SendOption customizes one logical send's envelope.
type SendOption func(*contracts.Envelope)

// WithCorrelationID sets the envelope's correlation ID.
func WithCorrelationID(id string) SendOption {
	return func(env *contracts.Envelope) {
		env.CorrelationID = id
	}
}

// WithMessageID overrides the generated message ID.
func WithMessageID(id string) SendOption {
	return func(env *contracts.Envelope) {
		env.MessageID = id
	}
}

// WithHeader attaches a header to every attempt of the send.
func WithHeader(key string, value interface{}) SendOption {
	return func(env *contracts.Envelope) {
		if env.Headers == nil {
			env.Headers = make(map[string]interface{})
		}
		env.Headers[key] = value
	}
}

// Send serializes payload once and delivers it to endpoint, blocking until
// a terminal outcome: nil after an acknowledged delivery, or the fault once
// no retry avenue remains.
func (p *Pipeline) Send(ctx context.Context, endpoint Endpoint, payload interface{}, opts ...SendOption) error {
	body, err := p.serializer.Serialize(payload)
	if err != nil {
		return err
	}
	env := p.builder.NewEnvelope(p.serializer.ContentType(), body)
	for _, opt := range opts {
		opt(env)
	}
	return p.SendEnvelope(ctx, endpoint, env)
}

// SendEnvelope delivers an assembled envelope. The envelope is not modified;
// each physical attempt gets its own wire message built from it.
func (p *Pipeline) SendEnvelope(ctx context.Context, endpoint Endpoint, env *contracts.Envelope) error {
	lastAttempt := 0
	exec := reliability.NewExecutor(p.chain,
		reliability.WithClock(p.clock),
		reliability.WithExecutorLogger(p.logger),
		reliability.WithSleepingGauge(&p.sleeping),
		reliability.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			p.sink.RetryScheduled(RetryEvent{
				Endpoint:  endpoint,
				MessageID: env.MessageID,
				Attempt:   attempt,
				Delay:     delay,
				Err:       err,
			})
		}),
	)

	err := exec.Execute(ctx, func(ctx context.Context, attempt int) error {
		lastAttempt = attempt
		return p.attempt(ctx, endpoint, env, attempt)
	})

	event := SendEvent{
		Endpoint:  endpoint,
		MessageID: env.MessageID,
		Attempt:   lastAttempt,
		InFlight:  p.limiter.InFlight(),
		Sleeping:  p.sleeping.Load(),
	}
	if err != nil {
		p.sink.SendFailed(event, err)
		p.logger.Warn("send failed",
			"endpoint", endpoint.String(),
			"messageId", env.MessageID,
			"attempts", lastAttempt,
			"error", err)
		if p.failureHandler != nil {
			p.failureHandler(ctx, endpoint, env, err)
		}
		return &contracts.SendError{
			Exchange:   endpoint.Exchange,
			RoutingKey: endpoint.RoutingKey,
			MessageID:  env.MessageID,
			Attempt:    lastAttempt,
			Err:        err,
			Timestamp:  p.clock.Now().UTC(),
		}
	}

	p.sink.SendSucceeded(event)
	return nil
}

// Sleeping reports how many logical sends are waiting out a backoff.
func (p *Pipeline) Sleeping() int64 { return p.sleeping.Load() }

// InFlight reports how many physical attempts hold a throttle slot.
func (p *Pipeline) InFlight() int64 { return p.limiter.InFlight() }

// Capacity reports the throttle slot limit.
func (p *Pipeline) Capacity() int64 { return p.limiter.Capacity() }

// BuilderStats reports wire messages built and released since start.
func (p *Pipeline) BuilderStats() (built, released int64) {
	return p.builder.Stats()
}

// attempt performs one physical attempt: claim a throttle slot, materialize
// the wire message, deliver, and return both resources before the retry
// decision runs, so a backoff wait never pins a slot or a message.
func (p *Pipeline) attempt(ctx context.Context, endpoint Endpoint, env *contracts.Envelope, attempt int) error {
	if err := p.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer p.limiter.Release()

	msg := p.builder.Build(env, endpoint, attempt)
	defer p.builder.Release(msg)

	p.sink.SendStarted(SendEvent{
		Endpoint:  endpoint,
		MessageID: env.MessageID,
		Attempt:   attempt,
		InFlight:  p.limiter.InFlight(),
		Sleeping:  p.sleeping.Load(),
	})

	return p.deliver(ctx, msg)
}

func (p *Pipeline) deliver(ctx context.Context, msg *contracts.WireMessage) error {
	send := func() error {
		return p.handler.Use(ctx, func(sender MessageSender) error {
			return sender.Send(ctx, msg)
		})
	}
	if p.breaker != nil {
		return p.breaker.Execute(ctx, send)
	}
	return send()
}
