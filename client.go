// Copyright 2024 Beamline Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package beamline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/beamline-mq/beamline-go/health"
	"github.com/beamline-mq/beamline-go/internal/rabbitmq"
	"github.com/beamline-mq/beamline-go/outbound"
	"github.com/beamline-mq/beamline-go/reliability"
)

// ErrNoEndpoint is returned by Send when no default endpoint was configured.
var ErrNoEndpoint = errors.New("beamline: no default endpoint configured")

// Client is the main entry point for beamline-go. It owns the broker
// connection, the channel pool, and the outbound pipeline, and tears all
// three down on Close.
type Client struct {
	manager  *rabbitmq.ConnectionManager
	handler  *rabbitmq.Handler
	pipeline *outbound.Pipeline
	endpoint outbound.Endpoint
	checks   *health.Registry
	logger   *slog.Logger
}

type clientConfig struct {
	logger               *slog.Logger
	endpoint             outbound.Endpoint
	maxOutstanding       int
	chain                *reliability.Chain
	breaker              *reliability.CircuitBreaker
	serializer           outbound.Serializer
	sink                 outbound.EventSink
	failureHandler       outbound.FailureHandler
	clock                clockwork.Clock
	dialTimeout          time.Duration
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	confirmTimeout       time.Duration
	maxChannels          int
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by the connection, the channel pool, and
// the pipeline.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithEndpoint sets the default destination used by Send.
func WithEndpoint(exchange, routingKey string) ClientOption {
	return func(c *clientConfig) {
		c.endpoint = outbound.Endpoint{Exchange: exchange, RoutingKey: routingKey}
	}
}

// WithMaxOutstanding caps how many sends may hold broker capacity at once.
func WithMaxOutstanding(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxOutstanding = n
	}
}

// WithChain replaces the default retry chain.
func WithChain(chain *reliability.Chain) ClientOption {
	return func(c *clientConfig) {
		c.chain = chain
	}
}

// WithCircuitBreaker guards every broker interaction with cb.
func WithCircuitBreaker(cb *reliability.CircuitBreaker) ClientOption {
	return func(c *clientConfig) {
		c.breaker = cb
	}
}

// WithSerializer replaces the default JSON payload serializer.
func WithSerializer(serializer outbound.Serializer) ClientOption {
	return func(c *clientConfig) {
		c.serializer = serializer
	}
}

// WithEventSink observes pipeline lifecycle events.
func WithEventSink(sink outbound.EventSink) ClientOption {
	return func(c *clientConfig) {
		c.sink = sink
	}
}

// WithFailureHandler is invoked once per send that fails terminally.
func WithFailureHandler(handler outbound.FailureHandler) ClientOption {
	return func(c *clientConfig) {
		c.failureHandler = handler
	}
}

// WithClock injects the clock used for backoff waits and timestamps.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *clientConfig) {
		c.clock = clock
	}
}

// WithDialTimeout bounds the initial dial and every reconnect dial.
func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.dialTimeout = timeout
	}
}

// WithReconnectDelay sets the base delay between reconnect attempts.
func WithReconnectDelay(delay time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.reconnectDelay = delay
	}
}

// WithMaxReconnectAttempts caps reconnect attempts after a dropped
// connection. Zero or negative means keep trying.
func WithMaxReconnectAttempts(attempts int) ClientOption {
	return func(c *clientConfig) {
		c.maxReconnectAttempts = attempts
	}
}

// WithConfirmTimeout bounds how long a send waits for broker confirmation.
func WithConfirmTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.confirmTimeout = timeout
	}
}

// WithMaxChannels caps the channel pool size.
func WithMaxChannels(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxChannels = n
	}
}

// NewClient connects to the broker at url and assembles the outbound
// pipeline over that connection. The connection is dialed eagerly so a bad
// URL or unreachable broker fails here rather than on the first send.
func NewClient(url string, options ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("beamline: connection url is required")
	}

	cfg := &clientConfig{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	connOpts := []rabbitmq.ConnectionOption{rabbitmq.WithLogger(cfg.logger)}
	if cfg.dialTimeout > 0 {
		connOpts = append(connOpts, rabbitmq.WithDialTimeout(cfg.dialTimeout))
	}
	if cfg.reconnectDelay > 0 {
		connOpts = append(connOpts, rabbitmq.WithReconnectDelay(cfg.reconnectDelay))
	}
	if cfg.maxReconnectAttempts > 0 {
		connOpts = append(connOpts, rabbitmq.WithMaxReconnectAttempts(cfg.maxReconnectAttempts))
	}
	manager := rabbitmq.NewConnectionManager(url, connOpts...)

	if err := manager.Connect(context.Background()); err != nil {
		manager.Close()
		return nil, fmt.Errorf("beamline: connect to broker: %w", err)
	}

	handlerOpts := []rabbitmq.HandlerOption{rabbitmq.WithHandlerLogger(cfg.logger)}
	if cfg.confirmTimeout > 0 {
		handlerOpts = append(handlerOpts, rabbitmq.WithConfirmTimeout(cfg.confirmTimeout))
	}
	if cfg.maxChannels > 0 {
		handlerOpts = append(handlerOpts, rabbitmq.WithPoolOptions(rabbitmq.WithMaxChannels(cfg.maxChannels)))
	}
	handler, err := rabbitmq.NewHandler(manager, handlerOpts...)
	if err != nil {
		manager.Close()
		return nil, err
	}

	pipeOpts := []outbound.PipelineOption{outbound.WithPipelineLogger(cfg.logger)}
	if cfg.maxOutstanding > 0 {
		pipeOpts = append(pipeOpts, outbound.WithMaxOutstanding(cfg.maxOutstanding))
	}
	if cfg.chain != nil {
		pipeOpts = append(pipeOpts, outbound.WithChain(cfg.chain))
	}
	if cfg.breaker != nil {
		pipeOpts = append(pipeOpts, outbound.WithBreaker(cfg.breaker))
	}
	if cfg.serializer != nil {
		pipeOpts = append(pipeOpts, outbound.WithSerializer(cfg.serializer))
	}
	if cfg.sink != nil {
		pipeOpts = append(pipeOpts, outbound.WithEventSink(cfg.sink))
	}
	if cfg.failureHandler != nil {
		pipeOpts = append(pipeOpts, outbound.WithFailureHandler(cfg.failureHandler))
	}
	if cfg.clock != nil {
		pipeOpts = append(pipeOpts, outbound.WithPipelineClock(cfg.clock))
	}
	pipeline, err := outbound.NewPipeline(handler, pipeOpts...)
	if err != nil {
		handler.Close()
		manager.Close()
		return nil, err
	}

	checks := health.NewRegistry()
	checks.Register(health.NewBrokerChecker(manager))
	checks.Register(health.NewPipelineChecker(pipeline))
	checks.SetMetadata("broker", rabbitmq.SanitizeURL(url))

	return &Client{
		manager:  manager,
		handler:  handler,
		pipeline: pipeline,
		endpoint: cfg.endpoint,
		checks:   checks,
		logger:   cfg.logger,
	}, nil
}

// Send delivers payload to the default endpoint configured with
// WithEndpoint. It blocks until the broker confirms the message or the
// retry chain gives up.
func (c *Client) Send(ctx context.Context, payload interface{}, options ...outbound.SendOption) error {
	if c.endpoint == (outbound.Endpoint{}) {
		return ErrNoEndpoint
	}
	return c.pipeline.Send(ctx, c.endpoint, payload, options...)
}

// SendTo delivers payload to an explicit endpoint.
func (c *Client) SendTo(ctx context.Context, endpoint outbound.Endpoint, payload interface{}, options ...outbound.SendOption) error {
	return c.pipeline.Send(ctx, endpoint, payload, options...)
}

// Pipeline exposes the outbound pipeline for callers that need envelopes,
// stats, or the in-flight gauges.
func (c *Client) Pipeline() *outbound.Pipeline {
	return c.pipeline
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.manager.IsConnected()
}

// Health exposes the client's health checks for mounting on an HTTP mux.
func (c *Client) Health() *health.Registry {
	return c.checks
}

// Close releases the channel pool and the broker connection.
func (c *Client) Close() error {
	return errors.Join(c.handler.Close(), c.manager.Close())
}
