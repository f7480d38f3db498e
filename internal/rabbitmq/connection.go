package rabbitmq

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionManager owns the AMQP connection and reconnects automatically
// when the broker drops it. Channel pools pull the live connection through
// GetConnection; while a reconnect is in progress they see
// ErrConnectionNotReady and the retry layer above rides it out.
type ConnectionManager struct {
	url            string
	conn           *amqp.Connection
	mu             sync.RWMutex
	dialTimeout    time.Duration
	reconnectDelay time.Duration
	maxAttempts    int
	logger         *slog.Logger
	notifyClose    chan *amqp.Error
	connected      bool
	closed         bool
	done           chan struct{}
}

// ConnectionOption configures the ConnectionManager.
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		if logger != nil {
			cm.logger = logger
		}
	}
}

// WithDialTimeout bounds every dial attempt.
func WithDialTimeout(timeout time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dialTimeout = timeout
	}
}

// WithReconnectDelay sets the base delay between reconnection attempts.
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.reconnectDelay = delay
	}
}

// WithMaxReconnectAttempts bounds reconnection attempts per disconnect.
// Non-positive means retry forever.
func WithMaxReconnectAttempts(attempts int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxAttempts = attempts
	}
}

// NewConnectionManager creates a manager for the given broker URL.
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:            url,
		dialTimeout:    30 * time.Second,
		reconnectDelay: 5 * time.Second,
		maxAttempts:    0,
		logger:         slog.Default(),
		done:           make(chan struct{}),
	}
	for _, opt := range options {
		opt(cm)
	}
	return cm
}

// Connect establishes the initial connection and starts the reconnect
// watchdog. Connecting an already connected or closed manager is an error
// only in the closed case.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return ErrConnectionClosed
	}
	if cm.connected {
		return nil
	}

	conn, err := cm.dial(ctx)
	if err != nil {
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.adopt(conn)
	cm.logger.Info("connected to broker", "url", SanitizeURL(cm.url))

	go cm.watch()
	return nil
}

// GetConnection returns the live connection.
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.closed {
		return nil, ErrConnectionClosed
	}
	if !cm.connected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}
	if cm.conn.IsClosed() {
		return nil, ErrConnectionNotReady
	}
	return cm.conn, nil
}

// IsConnected reports whether a live connection is held.
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connected && cm.conn != nil && !cm.conn.IsClosed()
}

// Close tears the connection down and stops reconnecting. The manager
// cannot be reused afterwards.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		return nil
	}
	cm.closed = true
	cm.connected = false
	close(cm.done)

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}
	return nil
}

// adopt installs a fresh connection. Callers must hold cm.mu.
func (cm *ConnectionManager) adopt(conn *amqp.Connection) {
	cm.conn = conn
	cm.connected = true
	cm.notifyClose = make(chan *amqp.Error, 1)
	conn.NotifyClose(cm.notifyClose)
}

// dial attempts one connection within the dial timeout.
func (cm *ConnectionManager) dial(ctx context.Context) (*amqp.Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.dialTimeout)
	defer cancel()

	connCh := make(chan *amqp.Connection, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := amqp.Dial(cm.url)
		if err != nil {
			errCh <- err
			return
		}
		select {
		case connCh <- conn:
		case <-dialCtx.Done():
			// Nobody is waiting anymore.
			conn.Close()
		}
	}()

	select {
	case conn := <-connCh:
		return conn, nil
	case err := <-errCh:
		return nil, err
	case <-dialCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrConnectionTimeout
	}
}

// watch waits for the broker to drop the connection and reconnects.
func (cm *ConnectionManager) watch() {
	for {
		cm.mu.RLock()
		notify := cm.notifyClose
		cm.mu.RUnlock()

		select {
		case err := <-notify:
			if err != nil {
				cm.logger.Error("connection lost", "error", err)
			}
			cm.mu.Lock()
			cm.connected = false
			cm.conn = nil
			cm.mu.Unlock()

			if !cm.reconnect() {
				return
			}

		case <-cm.done:
			cm.logger.Debug("connection watchdog stopped")
			return
		}
	}
}

// reconnect dials until a connection is adopted, the attempt budget runs
// out, or the manager closes. It reports whether watching should continue.
func (cm *ConnectionManager) reconnect() bool {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		if cm.maxAttempts > 0 && attempt > cm.maxAttempts {
			cm.logger.Error("giving up on reconnection",
				"attempts", cm.maxAttempts,
				"elapsed", time.Since(start))
			return false
		}

		if attempt > 1 {
			select {
			case <-time.After(cm.backoff(attempt - 1)):
			case <-cm.done:
				return false
			}
		}

		cm.logger.Info("reconnecting to broker",
			"attempt", attempt,
			"url", SanitizeURL(cm.url))

		conn, err := cm.dial(context.Background())
		if err != nil {
			cm.logger.Error("reconnection attempt failed",
				"attempt", attempt,
				"error", err)
			select {
			case <-cm.done:
				return false
			default:
			}
			continue
		}

		cm.mu.Lock()
		if cm.closed {
			cm.mu.Unlock()
			conn.Close()
			return false
		}
		cm.adopt(conn)
		cm.mu.Unlock()

		cm.logger.Info("reconnected to broker",
			"attempts", attempt,
			"elapsed", time.Since(start))
		return true
	}
}

// backoff doubles the reconnect delay per attempt, capped at five minutes,
// with ±25% jitter so a fleet of clients does not stampede the broker.
func (cm *ConnectionManager) backoff(attempt int) time.Duration {
	base := cm.reconnectDelay
	if base <= 0 {
		base = 5 * time.Second
	}
	const maxDelay = 5 * time.Minute

	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		attempt = 10
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	if delay > maxDelay {
		delay = maxDelay
	}

	jitter := time.Duration(float64(delay) * 0.25)
	if jitter > 0 {
		delay = delay - jitter/2 + time.Duration(rand.Int63n(int64(jitter)))
	}
	return delay
}
