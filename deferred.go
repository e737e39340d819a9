package effectpy

import (
	"context"
	"sync"
)

// Deferred is a single-assignment cell whose readers suspend until a value
// is set. A second write is a defect — Succeed and Fail report it by
// returning false rather than silently overwriting or blocking forever.
type Deferred[E, A any] struct {
	mu   sync.Mutex
	done chan struct{}
	exit Exit[E, A]
	set  bool
}

// NewDeferred creates an unset Deferred.
func NewDeferred[E, A any]() *Deferred[E, A] {
	return &Deferred[E, A]{done: make(chan struct{})}
}

// Succeed completes the Deferred with a success value. Returns false if
// the Deferred was already set — a second write is a defect condition,
// not a silent no-op.
func (d *Deferred[E, A]) Succeed(value A) bool {
	return d.complete(ExitSucceed[E, A](value))
}

// Fail completes the Deferred with a failure Cause.
func (d *Deferred[E, A]) Fail(cause Cause[E]) bool {
	return d.complete(ExitFail[E, A](cause))
}

func (d *Deferred[E, A]) complete(exit Exit[E, A]) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.set {
		return false
	}
	d.exit = exit
	d.set = true
	close(d.done)
	return true
}

// IsSet reports whether the Deferred has already been completed.
func (d *Deferred[E, A]) IsSet() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set
}

// Await blocks the calling goroutine until the Deferred is set, honoring
// fiber interruption the way every other suspension point in the system
// does. The second return value is true if the wait was cut short by
// interruption rather than completion.
func (d *Deferred[E, A]) Await(ctx context.Context) (Exit[E, A], bool) {
	fs := currentFiberState(ctx)
	if interrupted := awaitSuspension(ctx, fs, d.done); interrupted {
		var zero Exit[E, A]
		return zero, true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exit, false
}
