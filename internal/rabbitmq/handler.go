package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beamline-mq/beamline-go/contracts"
	"github.com/beamline-mq/beamline-go/outbound"
)

// Handler lends confirmed senders to the outbound pipeline. Each Use call
// borrows a channel from the pool for exactly one broker interaction and
// returns it afterwards, dead or alive.
type Handler struct {
	pool    *ChannelPool
	timeout time.Duration
	logger  *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	timeout     time.Duration
	logger      *slog.Logger
	poolOptions []ChannelPoolOption
}

// WithConfirmTimeout bounds how long a send waits for the broker's
// confirmation before the attempt is reported as timed out.
func WithConfirmTimeout(timeout time.Duration) HandlerOption {
	return func(c *handlerConfig) {
		c.timeout = timeout
	}
}

// WithHandlerLogger sets the logger for handler diagnostics.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(c *handlerConfig) {
		c.logger = logger
	}
}

// WithPoolOptions forwards options to the underlying channel pool.
func WithPoolOptions(options ...ChannelPoolOption) HandlerOption {
	return func(c *handlerConfig) {
		c.poolOptions = append(c.poolOptions, options...)
	}
}

// NewHandler creates a Handler over the manager's connection.
func NewHandler(manager *ConnectionManager, options ...HandlerOption) (*Handler, error) {
	cfg := &handlerConfig{
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("%w: confirm timeout must be positive", ErrInvalidConfiguration)
	}

	pool, err := NewChannelPool(manager, cfg.poolOptions...)
	if err != nil {
		return nil, err
	}

	return &Handler{
		pool:    pool,
		timeout: cfg.timeout,
		logger:  cfg.logger,
	}, nil
}

// Use runs action with a sender bound to a pooled channel. Failure to
// borrow a channel reads as the broker not being ready, except when the
// caller's context ended first. A panicking action is converted to an
// error so the channel still makes it back to the pool.
func (h *Handler) Use(ctx context.Context, action func(sender outbound.MessageSender) error) (err error) {
	pc, err := h.pool.Get(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", contracts.ErrBrokerNotReady, err)
	}
	defer h.pool.Put(pc)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("send action panicked", "panic", r)
			err = fmt.Errorf("rabbitmq: send action panicked: %v", r)
		}
	}()

	return action(&confirmedSender{pc: pc, timeout: h.timeout})
}

// Close releases the pooled channels. The connection itself stays with its
// manager.
func (h *Handler) Close() error {
	return h.pool.Close()
}
