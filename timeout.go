package effectpy

import (
	"context"
	"time"
)

// TimeoutResult carries the outcome of Timeout: either the primary
// computation's value, or notice that the deadline elapsed first. This is
// the comma-ok idiom applied to a single-purpose operation result, not a
// general-purpose "optional" data type.
type TimeoutResult[A any] struct {
	Value    A
	TimedOut bool
}

// Timeout races m against a sleep of duration d. If the sleep wins, the
// primary is interrupted and TimeoutResult.TimedOut is true; if m wins,
// its value is returned.
func Timeout[E, A any](m Computation[E, A], d time.Duration) Computation[E, TimeoutResult[A]] {
	return Computation[E, TimeoutResult[A]]{run: func(ctx context.Context, env *Context) Exit[E, TimeoutResult[A]] {
		fs := currentFiberState(ctx)
		done := make(chan Exit[E, A], 1)
		childID := nextFiberID()
		childCtx := withFiberState(ctx, newFiberState(childID, fs.locals.fork()))
		go func() {
			done <- m.Run(childCtx, env)
		}()

		clock := clockFromContext(env)
		timer := clock.After(d)
		childFs := currentFiberState(childCtx)

		if fs.masked() {
			select {
			case exit := <-done:
				return timeoutExit[E, A](exit)
			case <-timer:
				childFs.requestInterrupt()
				<-done
				return ExitSucceed[E, TimeoutResult[A]](TimeoutResult[A]{TimedOut: true})
			}
		}

		select {
		case exit := <-done:
			return timeoutExit[E, A](exit)
		case <-timer:
			childFs.requestInterrupt()
			<-done
			return ExitSucceed[E, TimeoutResult[A]](TimeoutResult[A]{TimedOut: true})
		case <-fs.interruptSignal:
			childFs.requestInterrupt()
			<-done
			return ExitFail[E, TimeoutResult[A]](NewInterrupt[E](fs.id))
		}
	}}
}

func timeoutExit[E, A any](exit Exit[E, A]) Exit[E, TimeoutResult[A]] {
	if exit.IsFailure() {
		cause, _ := exit.Failure()
		return ExitFail[E, TimeoutResult[A]](cause)
	}
	v, _ := exit.Value()
	return ExitSucceed[E, TimeoutResult[A]](TimeoutResult[A]{Value: v})
}
