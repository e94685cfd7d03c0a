package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	loggingpkg "github.com/drblury/omstasher/internal/runtime/logging"
)

// DefaultCapacity is the backlog length every subscriber gets.
const DefaultCapacity = 5

var (
	ErrBroadcasterClosed = errors.New("events: broadcaster is closed")
	ErrNoProducers       = errors.New("events: no more producers to listen to")
	ErrProducerClosed    = errors.New("events: producer handle is closed")
	ErrConsumerClosed    = errors.New("events: consumer handle is closed")
	ErrEmpty             = errors.New("events: no message queued")
)

// LagError is returned by a consumer whose backlog overflowed. Missed is the
// number of messages dropped since the previous read.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("events: consumer lagged, missed %d messages", e.Missed)
}

// IsLag reports whether err is a LagError and returns the missed count.
func IsLag(err error) (uint64, bool) {
	var lag *LagError
	if errors.As(err, &lag) {
		return lag.Missed, true
	}
	return 0, false
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithCapacity sets the per-subscriber backlog. Values below 1 are ignored.
func WithCapacity(capacity int) Option {
	return func(b *Broadcaster) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithLogger sets the logger used by the dispatcher loop.
func WithLogger(logger loggingpkg.ServiceLogger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// Broadcaster merges the messages of every producer into one queue (fan-in)
// and republishes each of them to every live consumer (fan-out). Each
// consumer has its own bounded backlog: a slow consumer loses its oldest
// messages instead of stalling the others.
type Broadcaster struct {
	capacity int
	logger   loggingpkg.ServiceLogger
	metrics  *Metrics

	mu        sync.Mutex
	queue     []EventMessage
	producers int
	consumers map[*Consumer]struct{}
	closed    bool

	// wake is signalled when the queue grows, a producer goes away or the
	// broadcaster closes.
	wake chan struct{}
	// pumpMu serializes Pump so that queue order is delivery order.
	pumpMu sync.Mutex
}

// New creates a broadcaster with no producers and no consumers.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		capacity:  DefaultCapacity,
		logger:    loggingpkg.NewNopLogger(),
		consumers: make(map[*Consumer]struct{}),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Capacity returns the per-subscriber backlog length.
func (b *Broadcaster) Capacity() int { return b.capacity }

// Subscribe registers a new consumer and hands out a producer bound to the
// same broadcaster. The consumer only sees messages dispatched after this
// call.
func (b *Broadcaster) Subscribe() (*Producer, *Consumer) {
	producer := b.Producer()

	c := &Consumer{
		b:        b,
		capacity: b.capacity,
		buf:      make([]EventMessage, 0, b.capacity),
		notify:   make(chan struct{}, 1),
	}

	b.mu.Lock()
	if b.closed {
		c.brokerClosed = true
	} else {
		b.consumers[c] = struct{}{}
	}
	count := len(b.consumers)
	b.mu.Unlock()

	b.metrics.setSubscribers(count)
	return producer, c
}

// Producer hands out a publish-only handle.
func (b *Broadcaster) Producer() *Producer {
	b.mu.Lock()
	b.producers++
	b.mu.Unlock()
	return &Producer{b: b}
}

// Pending returns the number of queued messages not yet dispatched.
func (b *Broadcaster) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Subscribers returns the number of live consumers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.consumers)
}

func (b *Broadcaster) enqueue(msg EventMessage) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBroadcasterClosed
	}
	b.queue = append(b.queue, msg)
	depth := len(b.queue)
	b.mu.Unlock()

	b.metrics.published(depth)
	b.signal()
	return nil
}

func (b *Broadcaster) releaseProducer() {
	b.mu.Lock()
	b.producers--
	b.mu.Unlock()
	b.signal()
}

func (b *Broadcaster) unsubscribe(c *Consumer) {
	b.mu.Lock()
	delete(b.consumers, c)
	count := len(b.consumers)
	b.mu.Unlock()
	b.metrics.setSubscribers(count)
}

func (b *Broadcaster) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Pump takes the next queued message, waiting for one if necessary, and
// republishes it to every current consumer. It returns ErrNoProducers once
// every producer has been closed and the queue is drained, and
// ErrBroadcasterClosed after Close.
func (b *Broadcaster) Pump(ctx context.Context) error {
	b.pumpMu.Lock()
	defer b.pumpMu.Unlock()

	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return ErrBroadcasterClosed
		}
		if len(b.queue) > 0 {
			msg := b.queue[0]
			b.queue[0] = EventMessage{}
			b.queue = b.queue[1:]
			depth := len(b.queue)
			consumers := make([]*Consumer, 0, len(b.consumers))
			for c := range b.consumers {
				consumers = append(consumers, c)
			}
			b.mu.Unlock()

			b.dispatch(msg, consumers, depth)
			return nil
		}
		if b.producers <= 0 {
			b.mu.Unlock()
			return ErrNoProducers
		}
		b.mu.Unlock()

		select {
		case <-b.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Broadcaster) dispatch(msg EventMessage, consumers []*Consumer, depth int) {
	if len(consumers) == 0 {
		b.logger.Debug("No subscriber for event, dropping it", loggingpkg.LogFields{
			"origin":  msg.Origin,
			"subject": msg.Subject,
			"action":  msg.Action.String(),
		})
	}

	var delivered, dropped int
	for _, c := range consumers {
		ok, lost := c.push(msg)
		if ok {
			delivered++
		}
		if lost {
			dropped++
		}
	}
	b.metrics.dispatched(delivered, dropped, depth)
}

// Run is the dispatcher loop: it pumps until the broadcaster has no
// producers left, is closed, or ctx is cancelled, and returns the reason.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("Event dispatcher started", loggingpkg.LogFields{"capacity": b.capacity})
	for {
		if err := b.Pump(ctx); err != nil {
			b.logger.Info("Event dispatcher stopped", loggingpkg.LogFields{"reason": err.Error()})
			return err
		}
	}
}

// Close tears the broadcaster down. Queued messages are discarded, producers
// fail from now on and consumers report ErrBroadcasterClosed once their
// backlog is drained.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.queue = nil
	consumers := make([]*Consumer, 0, len(b.consumers))
	for c := range b.consumers {
		consumers = append(consumers, c)
	}
	b.consumers = make(map[*Consumer]struct{})
	b.mu.Unlock()

	for _, c := range consumers {
		c.markBrokerClosed()
	}
	b.metrics.setSubscribers(0)
	b.signal()
}

// Producer publishes messages into a broadcaster. Producers may be cloned
// freely; the broadcaster keeps dispatching while at least one is open.
type Producer struct {
	b        *Broadcaster
	released atomic.Bool
}

// Publish queues msg without blocking.
func (p *Producer) Publish(msg EventMessage) error {
	if p.released.Load() {
		return ErrProducerClosed
	}
	return p.b.enqueue(msg)
}

// Clone returns an independent producer for the same broadcaster.
func (p *Producer) Clone() *Producer {
	return p.b.Producer()
}

// Close releases the producer. It is safe to call more than once.
func (p *Producer) Close() {
	if p.released.CompareAndSwap(false, true) {
		p.b.releaseProducer()
	}
}

// Consumer is a subscriber's private view of the broadcast stream. It must
// be read by a single goroutine.
type Consumer struct {
	b        *Broadcaster
	capacity int

	mu           sync.Mutex
	buf          []EventMessage
	missed       uint64
	brokerClosed bool
	detached     bool

	notify chan struct{}
}

// push appends msg to the backlog, dropping the oldest entry when full.
func (c *Consumer) push(msg EventMessage) (delivered, dropped bool) {
	c.mu.Lock()
	if c.detached || c.brokerClosed {
		c.mu.Unlock()
		return false, false
	}
	if len(c.buf) >= c.capacity {
		copy(c.buf, c.buf[1:])
		c.buf = c.buf[:len(c.buf)-1]
		c.missed++
		dropped = true
	}
	c.buf = append(c.buf, msg)
	c.mu.Unlock()

	c.wakeUp()
	return true, dropped
}

func (c *Consumer) markBrokerClosed() {
	c.mu.Lock()
	c.brokerClosed = true
	c.mu.Unlock()
	c.wakeUp()
}

func (c *Consumer) wakeUp() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// next returns the next available message without waiting. ok is false when
// nothing is queued and the stream is still open.
func (c *Consumer) next() (msg EventMessage, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return EventMessage{}, false, ErrConsumerClosed
	}
	if c.missed > 0 {
		missed := c.missed
		c.missed = 0
		return EventMessage{}, false, &LagError{Missed: missed}
	}
	if len(c.buf) > 0 {
		msg = c.buf[0]
		copy(c.buf, c.buf[1:])
		c.buf = c.buf[:len(c.buf)-1]
		return msg, true, nil
	}
	if c.brokerClosed {
		return EventMessage{}, false, ErrBroadcasterClosed
	}
	return EventMessage{}, false, nil
}

// Recv waits for the next message. It returns a *LagError once after
// messages were dropped, ErrBroadcasterClosed when the broadcaster is gone
// and the backlog is empty, and ctx.Err() on cancellation.
func (c *Consumer) Recv(ctx context.Context) (EventMessage, error) {
	for {
		msg, ok, err := c.next()
		if err != nil || ok {
			return msg, err
		}
		select {
		case <-c.notify:
		case <-ctx.Done():
			return EventMessage{}, ctx.Err()
		}
	}
}

// TryRecv is Recv without waiting: it returns ErrEmpty when nothing is
// queued.
func (c *Consumer) TryRecv() (EventMessage, error) {
	msg, ok, err := c.next()
	if err != nil || ok {
		return msg, err
	}
	return EventMessage{}, ErrEmpty
}

// Len returns the number of buffered messages.
func (c *Consumer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Close unsubscribes the consumer and drops its backlog.
func (c *Consumer) Close() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	c.buf = nil
	c.mu.Unlock()

	c.b.unsubscribe(c)
	c.wakeUp()
}
