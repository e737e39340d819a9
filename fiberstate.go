package effectpy

import (
	"context"
	"sync"
	"sync/atomic"
)

// fiberState is the per-fiber runtime bookkeeping threaded through a run
// via the standard context.Context, keyed by fiberStateKey. It carries the
// fiber's identity, its interruption signal, and its current
// uninterruptible-mask depth: operations marked uninterruptible defer
// signal delivery until they complete, and the signal is observed
// immediately afterward.
type fiberState struct {
	id FiberID

	maskDepth int32 // atomic

	interruptOnce   sync.Once
	interruptSignal chan struct{}
	interrupted     atomic.Bool

	locals *localsSnapshot
}

func newFiberState(id FiberID, locals *localsSnapshot) *fiberState {
	return &fiberState{
		id:              id,
		interruptSignal: make(chan struct{}),
		locals:          locals,
	}
}

// requestInterrupt idempotently signals the fiber to stop at its next
// unmasked suspension point.
func (fs *fiberState) requestInterrupt() {
	fs.interruptOnce.Do(func() {
		fs.interrupted.Store(true)
		close(fs.interruptSignal)
	})
}

func (fs *fiberState) pushMask() { atomic.AddInt32(&fs.maskDepth, 1) }
func (fs *fiberState) popMask()  { atomic.AddInt32(&fs.maskDepth, -1) }
func (fs *fiberState) masked() bool {
	return atomic.LoadInt32(&fs.maskDepth) > 0
}

type fiberStateKeyType struct{}

var fiberStateKey = fiberStateKeyType{}

// withFiberState attaches fs to ctx.
func withFiberState(ctx context.Context, fs *fiberState) context.Context {
	return context.WithValue(ctx, fiberStateKey, fs)
}

// currentFiberState retrieves the fiberState attached to ctx. For code run
// outside of any Fiber — e.g. calling Computation.Run directly — it returns
// a new unmasked root state (fiber id 0) whose interrupt signal is never
// fired; that state is not stored in ctx, so each such call gets a fresh one.
func currentFiberState(ctx context.Context) *fiberState {
	if fs, ok := ctx.Value(fiberStateKey).(*fiberState); ok {
		return fs
	}
	return newFiberState(0, newLocalsSnapshot())
}

// awaitSuspension blocks until done fires or, if the fiber is currently
// unmasked, until interruption is requested — whichever comes first. When
// masked, the interrupt signal is ignored entirely for the duration of
// this wait; a pending interrupt is then observed at the next unmasked
// suspension point, since interruptSignal, once closed, is immediately
// ready.
func awaitSuspension(ctx context.Context, fs *fiberState, done <-chan struct{}) (interrupted bool) {
	if fs.masked() {
		<-done
		return false
	}
	select {
	case <-done:
		return false
	case <-fs.interruptSignal:
		return true
	case <-ctx.Done():
		return true
	}
}
