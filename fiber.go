package effectpy

import (
	"context"
	"sync/atomic"
)

var fiberIDCounter uint64

func nextFiberID() FiberID {
	return FiberID(atomic.AddUint64(&fiberIDCounter, 1))
}

// FiberStatus is a Fiber's lifecycle stage.
type FiberStatus int32

const (
	FiberRunning FiberStatus = iota
	FiberInterrupting
	FiberInterrupted
	FiberDone
)

func (s FiberStatus) String() string {
	switch s {
	case FiberRunning:
		return "running"
	case FiberInterrupting:
		return "interrupting"
	case FiberInterrupted:
		return "interrupted"
	case FiberDone:
		return "done"
	default:
		return "unknown"
	}
}

// Fiber is a forkable unit of work with identity, join, and cooperative
// interruption.
type Fiber[E, A any] struct {
	id     FiberID
	status atomic.Int32
	result *Deferred[E, A]
	fs     *fiberState
}

// ID returns the fiber's monotonic identity.
func (f *Fiber[E, A]) ID() FiberID { return f.id }

// Status returns the fiber's current lifecycle stage.
func (f *Fiber[E, A]) Status() FiberStatus {
	return FiberStatus(f.status.Load())
}

// Await suspends the caller until the fiber completes, returning its Exit.
func (f *Fiber[E, A]) Await(ctx context.Context) Exit[E, A] {
	exit, interrupted := f.result.Await(ctx)
	if interrupted {
		callerFs := currentFiberState(ctx)
		return ExitFail[E, A](NewInterrupt[E](callerFs.id))
	}
	return exit
}

// Join awaits the fiber and, on failure, adapts its Cause into a Go error
// via CauseError, shaped for ordinary Go error handling.
func (f *Fiber[E, A]) Join(ctx context.Context) (A, error) {
	exit := f.Await(ctx)
	if exit.IsSuccess() {
		v, _ := exit.Value()
		return v, nil
	}
	cause, _ := exit.Failure()
	var zero A
	return zero, NewCauseError(cause)
}

// Interrupt requests cancellation and awaits actual cessation. Idempotent:
// calling it more than once, or after the fiber has already completed, is
// safe and simply awaits the (already-determined) outcome. A fiber that
// had already reached FiberDone on its own before the request landed
// keeps that status rather than being relabeled Interrupted.
func (f *Fiber[E, A]) Interrupt(ctx context.Context) Exit[E, A] {
	f.status.CompareAndSwap(int32(FiberRunning), int32(FiberInterrupting))
	f.fs.requestInterrupt()
	exit := f.Await(ctx)
	if FiberStatus(f.status.Load()) != FiberDone {
		f.status.Store(int32(FiberInterrupted))
	}
	return exit
}

// InheritLocals copies this fiber's current FiberLocal snapshot into the
// fiber running under targetCtx, so values set in this fiber become that
// fiber's defaults for any FiberLocal reads that follow.
func (f *Fiber[E, A]) InheritLocals(targetCtx context.Context) {
	currentFiberState(targetCtx).locals = f.fs.locals.fork()
}
