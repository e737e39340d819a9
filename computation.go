package effectpy

import (
	"context"
)

// Computation is a lazy, composable description of an asynchronous
// calculation that reads its environment from a Context, may suspend at
// well-defined points, and produces either a value of A or a Cause[E] on
// abnormal completion. Building a Computation has no side effects; only Run
// does.
//
// A natural three-parameter shape would thread an environment type
// parameter R alongside E and A. Go methods cannot introduce type
// parameters beyond their receiver's, which would make every type-changing
// combinator on a generic R impossible to express as a method; effectpy
// instead resolves environment lookups at run time against a *Context,
// where a missing service is a defect rather than a typed failure. See
// DESIGN.md.
type Computation[E, A any] struct {
	run func(ctx context.Context, env *Context) Exit[E, A]
}

// Run evaluates the computation against env using ctx as the ambient
// cancellation signal, recovering any panic raised by user code into a Die
// so it never escapes into the caller's own panic/recover handling.
func (m Computation[E, A]) Run(ctx context.Context, env *Context) (exit Exit[E, A]) {
	defer func() {
		if r := recover(); r != nil {
			exit = ExitFail[E, A](NewDie[E](r))
		}
	}()
	return m.run(ctx, env)
}

// Succeed builds a Computation that always succeeds with value.
func Succeed[E, A any](value A) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		return ExitSucceed[E, A](value)
	}}
}

// Fail builds a Computation that always fails with a typed error.
func Fail[E, A any](err E) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		return ExitFail[E, A](NewFail[E](err))
	}}
}

// Die builds a Computation that always fails with a defect.
func Die[E, A any](defect Defect) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		return ExitFail[E, A](NewDie[E](defect))
	}}
}

// FromCause builds a Computation that always fails with the given Cause.
func FromCause[E, A any](cause Cause[E]) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		return ExitFail[E, A](cause)
	}}
}

// Sync lifts a pure, infallible thunk into a Computation. A panic inside f
// becomes a Die (Run's recover handles it), never a typed failure.
func Sync[E, A any](f func() A) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		return ExitSucceed[E, A](f())
	}}
}

// Attempt lifts a fallible thunk into a Computation, mapping a non-nil
// error through onErr into the typed failure channel. A panic inside f
// still becomes a Die.
func Attempt[E, A any](f func() (A, error), onErr func(error) E) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		value, err := f()
		if err != nil {
			return ExitFail[E, A](NewFail[E](onErr(err)))
		}
		return ExitSucceed[E, A](value)
	}}
}

// FromFuture adopts an externally produced, context-aware computation —
// typically a call into a library built around context.Context rather than
// Computation. If onErr is nil a non-nil error becomes a Die; otherwise it
// is mapped into the typed failure channel.
func FromFuture[E, A any](make func(ctx context.Context) (A, error), onErr func(error) E) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, _ *Context) Exit[E, A] {
		value, err := make(ctx)
		if err == nil {
			return ExitSucceed[E, A](value)
		}
		if onErr == nil {
			return ExitFail[E, A](NewDie[E](err))
		}
		return ExitFail[E, A](NewFail[E](onErr(err)))
	}}
}

// FromExit lifts an already-computed Exit into a Computation.
func FromExit[E, A any](exit Exit[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(context.Context, *Context) Exit[E, A] {
		return exit
	}}
}

// Suspend defers construction of the inner Computation until Run time,
// useful for breaking initialization cycles and for computations whose
// shape depends on values only available at run time.
func Suspend[E, A any](thunk func() Computation[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		return thunk().Run(ctx, env)
	}}
}

// --- type-preserving methods ---

// Ensuring runs finalizer on every completion path — success, typed
// failure, defect, or interrupt. finalizer cannot itself raise a typed
// failure; any error it returns is a defect that combines with the main
// cause via Then ("finalizer ran after main").
func (m Computation[E, A]) Ensuring(finalizer func(ctx context.Context, env *Context) error) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		exit := m.Run(ctx, env)
		finErr := runFinalizerSafely(ctx, func(ctx context.Context) error { return finalizer(ctx, env) })
		if finErr == nil {
			return exit
		}
		finCause := NewDie[E](finErr)
		if exit.IsSuccess() {
			return ExitFail[E, A](finCause)
		}
		cause, _ := exit.Failure()
		return ExitFail[E, A](Then(cause, finCause))
	}}
}

// OnError runs handler whenever the computation ends in a typed failure,
// purely for its side effect; it does not change the outcome. Handler
// errors are folded into the propagated cause the same way Ensuring does.
func (m Computation[E, A]) OnError(handler func(ctx context.Context, env *Context, err E) error) Computation[E, A] {
	return m.onFailureKind(handler, nil, nil)
}

// OnInterrupt runs handler whenever the computation is interrupted, purely
// for its side effect.
func (m Computation[E, A]) OnInterrupt(handler func(ctx context.Context, env *Context, fiberID FiberID, known bool) error) Computation[E, A] {
	return m.onFailureKind(nil, nil, handler)
}

// OnDie runs handler whenever the computation dies with a defect, purely
// for its side effect.
func (m Computation[E, A]) OnDie(handler func(ctx context.Context, env *Context, defect Defect) error) Computation[E, A] {
	return m.onFailureKind(nil, handler, nil)
}

// onFailureKind is the shared implementation behind OnError/OnDie/OnInterrupt:
// exactly one of onErr, onDie, onInterrupt is non-nil, and it is invoked
// only when the completed cause contains that leaf kind.
func (m Computation[E, A]) onFailureKind(
	onErr func(ctx context.Context, env *Context, err E) error,
	onDie func(ctx context.Context, env *Context, defect Defect) error,
	onInterrupt func(ctx context.Context, env *Context, fiberID FiberID, known bool) error,
) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		exit := m.Run(ctx, env)
		if exit.IsSuccess() {
			return exit
		}
		cause, _ := exit.Failure()
		var hookErr error
		switch {
		case onErr != nil && IsFail(cause):
			err, _, _, _, _ := Squash(cause)
			hookErr = runFinalizerSafely(ctx, func(ctx context.Context) error { return onErr(ctx, env, err) })
		case onDie != nil && IsDie(cause):
			_, defect, _, _, _ := Squash(cause)
			hookErr = runFinalizerSafely(ctx, func(ctx context.Context) error { return onDie(ctx, env, defect) })
		case onInterrupt != nil && IsInterrupt(cause):
			_, _, fiberID, known, _ := Squash(cause)
			hookErr = runFinalizerSafely(ctx, func(ctx context.Context) error { return onInterrupt(ctx, env, fiberID, known) })
		}
		if hookErr == nil {
			return exit
		}
		return ExitFail[E, A](Then(cause, NewDie[E](hookErr)))
	}}
}

// Annotate attaches note to any Cause this computation produces.
func (m Computation[E, A]) Annotate(note string) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		exit := m.Run(ctx, env)
		if exit.IsSuccess() {
			return exit
		}
		cause, _ := exit.Failure()
		return ExitFail[E, A](Annotate(cause, note))
	}}
}

// Uninterruptible runs the computation with external interruption
// suppressed until it completes; a pending interrupt is observed at the
// computation's next unmasked suspension point.
func (m Computation[E, A]) Uninterruptible() Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		fs := currentFiberState(ctx)
		fs.pushMask()
		defer fs.popMask()
		return m.Run(ctx, env)
	}}
}

// UninterruptibleMask runs region with interruption masked, passing it a
// restore function it can apply to sub-computations it wants to remain
// interruptible despite the enclosing mask. restore pops exactly one level
// of masking for the duration of the wrapped computation, then
// re-establishes it, so nested UninterruptibleMask regions compose by
// depth rather than by a single global flag.
func UninterruptibleMask[E, A any](region func(restore func(Computation[E, A]) Computation[E, A]) Computation[E, A]) Computation[E, A] {
	restore := func(inner Computation[E, A]) Computation[E, A] {
		return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
			fs := currentFiberState(ctx)
			fs.popMask()
			defer fs.pushMask()
			return inner.Run(ctx, env)
		}}
	}
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		fs := currentFiberState(ctx)
		fs.pushMask()
		defer fs.popMask()
		return region(restore).Run(ctx, env)
	}}
}
