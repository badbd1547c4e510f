package model

import (
	"errors"
	"sync"

	"github.com/0xkonsti/chat-go/pkg/protocol"
)

var (
	ErrOutboxClosed = errors.New("model: outbox closed")
	ErrOutboxFull   = errors.New("model: outbox full")
)

// DefaultOutboxSize is the queue depth used when none is configured.
const DefaultOutboxSize = 64

// Outbox is a session's outbound message queue. Exactly one send loop
// drains it, which preserves per-connection FIFO delivery; any goroutine
// may push to it. Close is idempotent and unblocks both the drainer (the
// channel closes) and producers (Push starts failing).
type Outbox struct {
	mu     sync.Mutex
	ch     chan *protocol.Message
	done   chan struct{}
	closed bool
}

// NewOutbox creates a queue with the given depth (DefaultOutboxSize if <= 0).
func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Outbox{
		ch:   make(chan *protocol.Message, size),
		done: make(chan struct{}),
	}
}

// Push enqueues a message. It fails with ErrOutboxClosed after Close, and
// with ErrOutboxFull when the queue is at capacity; it never blocks, so a
// slow consumer cannot stall an unrelated session's tasks.
func (o *Outbox) Push(m *protocol.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.ch <- m:
		return nil
	default:
		return ErrOutboxFull
	}
}

// C returns the receive side of the queue. The channel closes after Close,
// once buffered messages are drained.
func (o *Outbox) C() <-chan *protocol.Message { return o.ch }

// Done returns a channel closed when the outbox is closed. Producers that
// block on timers (the heartbeat loop) select on it.
func (o *Outbox) Done() <-chan struct{} { return o.done }

// Close shuts the queue. Safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
	close(o.ch)
}
