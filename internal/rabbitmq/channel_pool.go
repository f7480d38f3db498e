package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PooledChannel is an AMQP channel prepared for confirmed sends: confirm
// mode is enabled and the confirmation and return streams are registered at
// creation. A pooled channel is lent to one sender at a time, so the
// delivery tag counter needs no locking.
type PooledChannel struct {
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
	returns  chan amqp.Return
	nextTag  uint64
	lastUsed time.Time
}

// ChannelPool keeps confirm-mode channels ready so senders do not pay
// channel setup on every attempt. Channels are created on demand up to
// maxSize and reaped after sitting idle.
type ChannelPool struct {
	manager     *ConnectionManager
	channels    chan *PooledChannel
	maxSize     int
	idleTimeout time.Duration
	getTimeout  time.Duration
	mu          sync.Mutex
	active      int
	closed      bool
	done        chan struct{}
}

// ChannelPoolOption configures the channel pool.
type ChannelPoolOption func(*ChannelPool)

// WithMaxChannels caps how many channels the pool keeps open.
func WithMaxChannels(size int) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.maxSize = size
	}
}

// WithIdleTimeout sets how long an unused channel survives before reaping.
func WithIdleTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.idleTimeout = timeout
	}
}

// WithGetTimeout bounds how long Get waits on an exhausted pool.
func WithGetTimeout(timeout time.Duration) ChannelPoolOption {
	return func(cp *ChannelPool) {
		cp.getTimeout = timeout
	}
}

// NewChannelPool creates a pool over the manager's connection.
func NewChannelPool(manager *ConnectionManager, options ...ChannelPoolOption) (*ChannelPool, error) {
	if manager == nil {
		return nil, fmt.Errorf("%w: connection manager is required", ErrInvalidConfiguration)
	}

	pool := &ChannelPool{
		manager:     manager,
		maxSize:     8,
		idleTimeout: 5 * time.Minute,
		getTimeout:  5 * time.Second,
		done:        make(chan struct{}),
	}
	for _, opt := range options {
		opt(pool)
	}
	if pool.maxSize < 1 {
		return nil, fmt.Errorf("%w: max channels must be at least 1", ErrInvalidConfiguration)
	}

	pool.channels = make(chan *PooledChannel, pool.maxSize)
	go pool.reapIdle()

	return pool, nil
}

// Get borrows a channel, creating one when the pool has headroom. On an
// exhausted pool it waits until a channel comes back, ctx ends, or the get
// timeout fires.
func (cp *ChannelPool) Get(ctx context.Context) (*PooledChannel, error) {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil, ErrChannelPoolClosed
	}
	cp.mu.Unlock()

	select {
	case pc := <-cp.channels:
		if pc.ch.IsClosed() {
			cp.drop(pc)
			return cp.create()
		}
		pc.lastUsed = time.Now()
		return pc, nil
	default:
	}

	cp.mu.Lock()
	if cp.active < cp.maxSize {
		cp.mu.Unlock()
		return cp.create()
	}
	cp.mu.Unlock()

	select {
	case pc := <-cp.channels:
		if pc.ch.IsClosed() {
			cp.drop(pc)
			return cp.create()
		}
		pc.lastUsed = time.Now()
		return pc, nil
	case <-ctx.Done():
		return nil, &ChannelError{Op: "get channel", Err: ctx.Err(), Timestamp: time.Now()}
	case <-time.After(cp.getTimeout):
		return nil, &ChannelError{Op: "get channel", Err: ErrChannelPoolExhausted, Timestamp: time.Now()}
	}
}

// Put returns a borrowed channel. Dead channels are dropped so the next
// borrower gets a fresh one.
func (cp *ChannelPool) Put(pc *PooledChannel) {
	if pc == nil {
		return
	}

	cp.mu.Lock()
	if cp.closed {
		cp.active--
		cp.mu.Unlock()
		pc.ch.Close()
		return
	}
	if pc.ch.IsClosed() {
		cp.active--
		cp.mu.Unlock()
		pc.ch.Close()
		return
	}

	pc.lastUsed = time.Now()
	select {
	case cp.channels <- pc:
		cp.mu.Unlock()
	default:
		cp.active--
		cp.mu.Unlock()
		pc.ch.Close()
	}
}

// Size reports how many channels the pool currently owns, lent out or idle.
func (cp *ChannelPool) Size() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.active
}

// Close shuts the pool and every idle channel. Channels lent out are closed
// as they come back through Put. The buffered channel itself is never
// closed so stragglers cannot panic on it.
func (cp *ChannelPool) Close() error {
	cp.mu.Lock()
	if cp.closed {
		cp.mu.Unlock()
		return nil
	}
	cp.closed = true
	cp.mu.Unlock()

	close(cp.done)
	for {
		select {
		case pc := <-cp.channels:
			cp.mu.Lock()
			cp.active--
			cp.mu.Unlock()
			pc.ch.Close()
		default:
			return nil
		}
	}
}

// create opens a confirm-mode channel on the live connection.
func (cp *ChannelPool) create() (*PooledChannel, error) {
	conn, err := cp.manager.GetConnection()
	if err != nil {
		return nil, &ChannelError{Op: "create channel", Err: err, Timestamp: time.Now()}
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, &ChannelError{Op: "create channel", Err: err, Timestamp: time.Now()}
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, &ChannelError{Op: "enable confirms", Err: err, Timestamp: time.Now()}
	}

	pc := &PooledChannel{
		ch:       ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 8)),
		returns:  ch.NotifyReturn(make(chan amqp.Return, 8)),
		nextTag:  1,
		lastUsed: time.Now(),
	}

	cp.mu.Lock()
	cp.active++
	cp.mu.Unlock()
	return pc, nil
}

// drop closes a channel and forgets it.
func (cp *ChannelPool) drop(pc *PooledChannel) {
	pc.ch.Close()
	cp.mu.Lock()
	cp.active--
	cp.mu.Unlock()
}

// reapIdle closes channels that sat unused past the idle timeout.
func (cp *ChannelPool) reapIdle() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-cp.done:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-cp.idleTimeout)
		var keep []*PooledChannel
	drain:
		for {
			select {
			case pc := <-cp.channels:
				if pc.lastUsed.Before(cutoff) || pc.ch.IsClosed() {
					cp.drop(pc)
				} else {
					keep = append(keep, pc)
				}
			default:
				break drain
			}
		}
		for _, pc := range keep {
			select {
			case cp.channels <- pc:
			default:
				cp.drop(pc)
			}
		}
	}
}
