package effectpy

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// ErrChannelClosed is the defect carried by a Die when a Computation sends
// to, or drains an already-empty, closed Channel.
type ErrChannelClosed struct{}

func (ErrChannelClosed) Error() string { return "effectpy: channel closed" }

// Channel is the bounded, multi-producer multi-consumer queue backing
// Pipeline and Hub: senders block while the buffer is full and the
// channel is open; once closed, further sends fail but buffered items
// remain receivable. A capacity of 0 approximates synchronous rendezvous
// by internally buffering a single item, keeping FIFO-per-pair ordering
// while staying a plain ring buffer rather than a strictly synchronous
// hand-off.
//
// Closing a Channel wakes both waiting senders (who must observe the
// close and fail) and waiting receivers. A receiver left parked past a
// close would leak its worker fiber forever, which a Pipeline must never
// do — correctness of that no-leak guarantee wins over leaving blocked
// receivers parked. See DESIGN.md.
type Channel[T any] struct {
	mu       sync.Mutex
	buf      []T
	capacity int
	closed   bool
	name     Name

	sendWaiters []chan struct{}
	recvWaiters []chan struct{}
}

// NewChannel creates an open Channel with the given buffer capacity.
func NewChannel[T any](name Name, capacity int) *Channel[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel[T]{name: name, capacity: capacity}
}

func (c *Channel[T]) effectiveCap() int {
	if c.capacity == 0 {
		return 1
	}
	return c.capacity
}

func notifyAll(waiters *[]chan struct{}) {
	for _, w := range *waiters {
		close(w)
	}
	*waiters = nil
}

// Send suspends until there is buffer capacity or the channel closes. It
// returns a defect-carrying failure if the channel is (or becomes) closed
// before room is available.
func (c *Channel[T]) Send(ctx context.Context, value T) Exit[Unit, Unit] {
	fs := currentFiberState(ctx)
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return ExitFail[Unit, Unit](NewDie[Unit](ErrChannelClosed{}))
		}
		if len(c.buf) < c.effectiveCap() {
			c.buf = append(c.buf, value)
			notifyAll(&c.recvWaiters)
			full := len(c.buf) >= c.effectiveCap()
			c.mu.Unlock()
			if full {
				capitan.Warn(ctx, SignalChannelSaturated,
					FieldName.Field(string(c.name)),
					FieldCapacity.Field(c.capacity),
					FieldQueueLen.Field(len(c.buf)),
				)
			}
			return ExitSucceed[Unit, Unit](unit)
		}
		wait := make(chan struct{})
		c.sendWaiters = append(c.sendWaiters, wait)
		c.mu.Unlock()

		if interrupted := awaitSuspension(ctx, fs, wait); interrupted {
			return ExitFail[Unit, Unit](NewInterrupt[Unit](fs.id))
		}
	}
}

// TrySend attempts to enqueue value without suspending. ok is false if the
// channel is full or closed.
func (c *Channel[T]) TrySend(value T) (ok bool, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, true
	}
	if len(c.buf) >= c.effectiveCap() {
		return false, false
	}
	c.buf = append(c.buf, value)
	notifyAll(&c.recvWaiters)
	return true, false
}

// Receive suspends until an item is available. It fails with a
// closed-channel defect once the channel is closed and drained.
func (c *Channel[T]) Receive(ctx context.Context) Exit[Unit, T] {
	fs := currentFiberState(ctx)
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			v := c.buf[0]
			c.buf = c.buf[1:]
			notifyAll(&c.sendWaiters)
			c.mu.Unlock()
			return ExitSucceed[Unit, T](v)
		}
		if c.closed {
			c.mu.Unlock()
			return ExitFail[Unit, T](NewDie[Unit](ErrChannelClosed{}))
		}
		wait := make(chan struct{})
		c.recvWaiters = append(c.recvWaiters, wait)
		c.mu.Unlock()

		if interrupted := awaitSuspension(ctx, fs, wait); interrupted {
			return ExitFail[Unit, T](NewInterrupt[Unit](fs.id))
		}
	}
}

// TryReceive attempts to dequeue an item without suspending.
func (c *Channel[T]) TryReceive() (value T, ok bool, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) > 0 {
		v := c.buf[0]
		c.buf = c.buf[1:]
		notifyAll(&c.sendWaiters)
		return v, true, false
	}
	return value, false, c.closed
}

// Close idempotently closes the channel, permitting drain of any buffered
// items via Receive/TryReceive and failing all future and pending sends.
func (c *Channel[T]) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	notifyAll(&c.sendWaiters)
	notifyAll(&c.recvWaiters)
	c.mu.Unlock()

	capitan.Info(ctx, SignalChannelClosed, FieldName.Field(string(c.name)))
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// IsClosed reports whether Close has been called.
func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
