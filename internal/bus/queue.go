package bus

import (
	"errors"
	"time"
)

// ErrTimeout is returned by the consume operations when no message arrives
// within the given window. Consumers loop on it to recheck their running flag.
var ErrTimeout = errors.New("bus: consume timed out")

// ErrClosed is returned after Close; consumers should exit their loop.
var ErrClosed = errors.New("bus: closed")

const defaultQueueSize = 256

// MessageBus carries messages between channels and the agent runtime.
// Two independent FIFO queues: inbound (channel → agent) and outbound
// (agent → channel). Safe for many publishers; each queue expects one
// primary consumer (the agent loop for inbound, the channel dispatcher
// for outbound).
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
	done     chan struct{}
}

// New creates a message bus with the default queue capacity.
func New() *MessageBus {
	return NewWithSize(defaultQueueSize)
}

// NewWithSize creates a message bus with the given per-queue capacity.
func NewWithSize(size int) *MessageBus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &MessageBus{
		inbound:  make(chan InboundMessage, size),
		outbound: make(chan OutboundMessage, size),
		done:     make(chan struct{}),
	}
}

// PublishInbound enqueues a message from a channel for the agent loop.
// Blocks when the queue is full (natural backpressure on flooding channels).
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	case <-b.done:
	}
}

// PublishOutbound enqueues a response for delivery by a channel adapter.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	case <-b.done:
	}
}

// ConsumeInbound dequeues the next inbound message, waiting up to timeout.
// Returns ErrTimeout when nothing arrived and ErrClosed after shutdown.
func (b *MessageBus) ConsumeInbound(timeout time.Duration) (InboundMessage, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-t.C:
		return InboundMessage{}, ErrTimeout
	case <-b.done:
		return InboundMessage{}, ErrClosed
	}
}

// ConsumeOutbound dequeues the next outbound message, waiting up to timeout.
func (b *MessageBus) ConsumeOutbound(timeout time.Duration) (OutboundMessage, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case msg := <-b.outbound:
		return msg, nil
	case <-t.C:
		return OutboundMessage{}, ErrTimeout
	case <-b.done:
		return OutboundMessage{}, ErrClosed
	}
}

// Close releases blocked publishers and consumers. Idempotent callers should
// guard with their own running flag; Close must be called at most once.
func (b *MessageBus) Close() {
	close(b.done)
}
