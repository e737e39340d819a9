package effectpy

import "context"

// Pair is the minimal two-element tuple Zip needs. It is not a general
// data-type convenience (the out-of-scope list excludes optional, either,
// result, duration, chunk) — it exists solely to carry the result of
// pairing two computations and has no further API surface.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Never is an uninhabited-by-convention error type: a Computation typed
// Computation[Never, A] declares, by the type of its error channel, that
// it cannot fail typed. Fold uses it as the result of its error channel
// below.
type Never struct{}

// Map transforms the success channel of m, leaving failures untouched. A
// package-level function, not a method, because it changes A's type
// parameter — Go methods cannot introduce type parameters beyond the
// receiver's.
func Map[E, A, B any](m Computation[E, A], f func(A) B) Computation[E, B] {
	return Computation[E, B]{run: func(ctx context.Context, env *Context) Exit[E, B] {
		return MapExit(m.Run(ctx, env), f)
	}}
}

// MapError transforms the typed-failure channel of m, leaving success and
// defects/interrupts untouched.
func MapError[E, A, E2 any](m Computation[E, A], f func(E) E2) Computation[E2, A] {
	return Computation[E2, A]{run: func(ctx context.Context, env *Context) Exit[E2, A] {
		exit := m.Run(ctx, env)
		if exit.IsSuccess() {
			v, _ := exit.Value()
			return ExitSucceed[E2, A](v)
		}
		cause, _ := exit.Failure()
		return ExitFail[E2, A](mapCauseError(cause, f))
	}}
}

// mapCauseError rewrites every Fail leaf of cause through f, leaving Die
// and Interrupt leaves (and the tree shape) untouched.
func mapCauseError[E, E2 any](cause Cause[E], f func(E) E2) Cause[E2] {
	switch n := cause.(type) {
	case nil:
		return nil
	case FailCause[E]:
		return NewFail[E2](f(n.Err))
	case DieCause[E]:
		return NewDie[E2](n.Defect)
	case InterruptCause[E]:
		if n.HasFiberID {
			return NewInterrupt[E2](n.FiberID)
		}
		return NewInterruptUnattributed[E2]()
	case ThenCause[E]:
		return Then(mapCauseError(n.Left, f), mapCauseError(n.Right, f))
	case BothCause[E]:
		return BothCauses(mapCauseError(n.Left, f), mapCauseError(n.Right, f))
	case AnnotatedCause[E]:
		return Annotate(mapCauseError(n.Inner, f), n.Note)
	default:
		return nil
	}
}

// FlatMap sequences m into k: if m fails, k never runs and the failure
// short-circuits; otherwise k(a) is run with m's success value.
func FlatMap[E, A, B any](m Computation[E, A], k func(A) Computation[E, B]) Computation[E, B] {
	return Computation[E, B]{run: func(ctx context.Context, env *Context) Exit[E, B] {
		exit := m.Run(ctx, env)
		if exit.IsFailure() {
			cause, _ := exit.Failure()
			return ExitFail[E, B](cause)
		}
		v, _ := exit.Value()
		return k(v).Run(ctx, env)
	}}
}

// Zip sequentially pairs a and b, running a then b, succeeding with both
// results.
func Zip[E, A, B any](a Computation[E, A], b Computation[E, B]) Computation[E, Pair[A, B]] {
	return FlatMap(a, func(av A) Computation[E, Pair[A, B]] {
		return Map(b, func(bv B) Pair[A, B] { return Pair[A, B]{First: av, Second: bv} })
	})
}

// ZipWith sequentially pairs a and b, combining their results with g.
func ZipWith[E, A, B, C any](a Computation[E, A], b Computation[E, B], g func(A, B) C) Computation[E, C] {
	return Map(Zip(a, b), func(p Pair[A, B]) C { return g(p.First, p.Second) })
}

// CatchAll intercepts a typed failure and recovers via h; Die and
// Interrupt are never intercepted. Because h may recover into a
// computation with a different error type, CatchAll changes E and must
// be a free function.
func CatchAll[E, A, E2 any](m Computation[E, A], h func(E) Computation[E2, A]) Computation[E2, A] {
	return Computation[E2, A]{run: func(ctx context.Context, env *Context) Exit[E2, A] {
		exit := m.Run(ctx, env)
		if exit.IsSuccess() {
			v, _ := exit.Value()
			return ExitSucceed[E2, A](v)
		}
		cause, _ := exit.Failure()
		if !IsFail(cause) {
			return ExitFail[E2, A](mapCauseError(cause, func(E) E2 {
				panic("effectpy: unreachable, cause has no Fail leaf")
			}))
		}
		err, _, _, _, _ := Squash(cause)
		return h(err).Run(ctx, env)
	}}
}

// Fold totally handles the typed-failure and success channels, turning
// both into a value of B. Defects and interrupts are not caught — they
// still propagate, which the Never error type documents at the type
// level. Use FoldEffect to additionally intercept defects and interrupts.
func Fold[E, A, B any](m Computation[E, A], onErr func(E) B, onOk func(A) B) Computation[Never, B] {
	return Computation[Never, B]{run: func(ctx context.Context, env *Context) Exit[Never, B] {
		exit := m.Run(ctx, env)
		if exit.IsSuccess() {
			v, _ := exit.Value()
			return ExitSucceed[Never, B](onOk(v))
		}
		cause, _ := exit.Failure()
		if IsFail(cause) {
			err, _, _, _, _ := Squash(cause)
			return ExitSucceed[Never, B](onErr(err))
		}
		return ExitFail[Never, B](mapCauseError(cause, func(E) Never { return Never{} }))
	}}
}

// FoldEffect totally handles every completion path: onCause receives the
// full Cause (so it can distinguish Fail/Die/Interrupt), onOk receives the
// success value, and either may recover into a computation with a
// different error type E2.
func FoldEffect[E, A, E2, B any](m Computation[E, A], onCause func(Cause[E]) Computation[E2, B], onOk func(A) Computation[E2, B]) Computation[E2, B] {
	return Computation[E2, B]{run: func(ctx context.Context, env *Context) Exit[E2, B] {
		exit := m.Run(ctx, env)
		if exit.IsSuccess() {
			v, _ := exit.Value()
			return onOk(v).Run(ctx, env)
		}
		cause, _ := exit.Failure()
		return onCause(cause).Run(ctx, env)
	}}
}

// RefineOrDie narrows the typed-failure channel to the subset p accepts;
// a Fail outside that subset becomes a Die.
func RefineOrDie[E, A, E2 any](m Computation[E, A], p func(E) (E2, bool)) Computation[E2, A] {
	return FoldEffect(m,
		func(cause Cause[E]) Computation[E2, A] {
			if !IsFail(cause) {
				return FromCause[E2, A](mapCauseError(cause, func(E) E2 {
					panic("effectpy: unreachable, cause has no Fail leaf")
				}))
			}
			err, _, _, _, _ := Squash(cause)
			if refined, ok := p(err); ok {
				return Fail[E2, A](refined)
			}
			return Die[E2, A](err)
		},
		func(a A) Computation[E2, A] { return Succeed[E2, A](a) },
	)
}

// AcquireRelease runs acquire; on success, registers release on the scope
// found in env (looked up via the well-known scope Tag — a missing scope
// is a defect); on acquire failure no release is scheduled. Release always
// runs, including under interruption, because Scope finalizers run in an
// uninterruptible region.
func AcquireRelease[E, A any](acquire Computation[E, A], release func(ctx context.Context, env *Context, a A) error) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		fs := currentFiberState(ctx)
		fs.pushMask()
		exit := acquire.Run(ctx, env)
		fs.popMask()

		if exit.IsFailure() {
			return exit
		}
		value, _ := exit.Value()

		scope, ok := ContextGet(env, scopeTag)
		if !ok {
			return ExitFail[E, A](NewDie[E](missingServiceDefect{tag: scopeTag.String()}))
		}
		_ = scope.AddFinalizer(ctx, func(ctx context.Context) error {
			return release(ctx, env, value)
		})
		return exit
	}}
}

// scopeTag is the well-known Context key for "the nearest enclosing
// Scope", installed by ProvideScoped and by Runtime.Run/Fork; Provide
// builds onto the one already present in its env.
var scopeTag = NewTag[*Scope]("effectpy.scope")
