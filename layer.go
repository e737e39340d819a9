package effectpy

import (
	"context"

	"github.com/zoobzio/capitan"
)

// Layer is a composable, scoped builder of service environments: a pair
// of (build: Context × Scope -> Context, teardown implicit via the
// scope). Building a Layer registers whatever finalizers it needs onto
// the Scope it is given; the Context it returns already has its own
// services merged in.
type Layer[E any] struct {
	name  Name
	build func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[E])
}

// NewLayer wraps a raw build function as a Layer.
func NewLayer[E any](name Name, build func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[E])) Layer[E] {
	return Layer[E]{name: name, build: build}
}

// ServiceLayer builds a Layer that adds exactly one service, running
// acquire to produce it and release (if non-nil) as its scope finalizer.
// This is the common case: most layers exist to construct and tear down
// one external collaborator.
func ServiceLayer[E, T any](name Name, tag Tag[T], acquire func(ctx context.Context) (T, Cause[E]), release func(ctx context.Context, value T) error) Layer[E] {
	return NewLayer(name, func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[E]) {
		value, cause := acquire(ctx)
		if cause != nil {
			return nil, cause
		}
		if release != nil {
			_ = scope.AddFinalizer(ctx, func(ctx context.Context) error {
				return release(ctx, value)
			})
		}
		return ContextAdd(base, tag, value), nil
	})
}

// BuildScoped is the primary Layer operator: build l against scope,
// starting from base, tracing the attempt and emitting its lifecycle as
// capitan signals alongside the span.
func BuildScoped[E any](ctx context.Context, l Layer[E], base *Context, scope *Scope) (*Context, Cause[E]) {
	tracer := tracerFromContext(base)
	spanCtx, span := tracer.StartSpan(ctx, "layer.build", map[string]string{"layer": l.name})
	defer span.End()

	capitan.Info(spanCtx, SignalLayerBuildStart, FieldName.Field(string(l.name)))

	result, cause := l.build(spanCtx, base, scope)
	if cause != nil {
		span.AddEvent("error", map[string]string{"cause": PrettyRender(cause)})
		loggerFromContext(base).Log(ctx, LevelError, "layer build failed", map[string]string{
			"layer": l.name,
			"cause": PrettyRender(cause),
		})
		capitan.Error(spanCtx, SignalLayerBuildError, FieldName.Field(string(l.name)), FieldError.Field(PrettyRender(cause)))
		return nil, cause
	}
	span.AddEvent("built", nil)
	capitan.Info(spanCtx, SignalLayerBuildDone, FieldName.Field(string(l.name)))
	return result, nil
}

// ProvideScoped builds l in a fresh scope, runs use with the resulting
// Context, and tears the scope down on completion regardless of outcome.
// base supplies any services l's own build needs that aren't part of l
// itself.
func ProvideScoped[E, A any](ctx context.Context, l Layer[E], base *Context, use func(env *Context) Computation[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, _ *Context) Exit[E, A] {
		scope := NewScope("layer.scoped")
		env, cause := BuildScoped(ctx, l, base, scope)
		if cause != nil {
			_ = scope.Close(ctx)
			return ExitFail[E, A](cause)
		}
		env = ContextAdd(env, scopeTag, scope)
		exit := use(env).Run(ctx, env)
		closeErr := scope.Close(ctx)
		if closeErr == nil {
			return exit
		}
		finCause := NewDie[E](closeErr)
		if exit.IsSuccess() {
			return ExitFail[E, A](finCause)
		}
		c, _ := exit.Failure()
		return ExitFail[E, A](Then(c, finCause))
	}}
}

// Provide builds l against the Context already found in env (via the
// scope installed by Runtime.Run/Fork or an enclosing ProvideScoped), and
// runs use under the merged result. Unlike ProvideScoped, the built
// services live as long as the calling fiber rather than being torn down
// immediately.
func Provide[E, A any](ctx context.Context, l Layer[E], env *Context, use func(env *Context) Computation[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, _ *Context) Exit[E, A] {
		scope, ok := ContextGet(env, scopeTag)
		if !ok {
			return ExitFail[E, A](NewDie[E](missingServiceDefect{tag: scopeTag.String()}))
		}
		merged, cause := BuildScoped(ctx, l, env, scope)
		if cause != nil {
			return ExitFail[E, A](cause)
		}
		return use(merged).Run(ctx, merged)
	}}
}

// ThenLayer composes two layers sequentially: right is built from left's
// output Context ("right sees left's outputs"). If right's build fails,
// left's releases are still scheduled on scope because they were already
// registered before right ran.
func ThenLayer[E any](left, right Layer[E]) Layer[E] {
	return NewLayer[E](left.name+"+"+right.name, func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[E]) {
		mid, cause := left.build(ctx, base, scope)
		if cause != nil {
			return nil, cause
		}
		return right.build(ctx, mid, scope)
	})
}

// ParallelLayer composes two layers concurrently against the same base
// Context and Scope. On key conflict, right's services override left's.
// On partial failure, both partial builds' finalizers have already been
// registered by the time either goroutine returns, so both run when scope
// closes.
func ParallelLayer[E any](left, right Layer[E]) Layer[E] {
	return NewLayer[E](left.name+"|"+right.name, func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[E]) {
		type outcome struct {
			ctxOut *Context
			cause  Cause[E]
		}
		leftCh := make(chan outcome, 1)
		rightCh := make(chan outcome, 1)

		go func() {
			c, cause := left.build(ctx, base, scope)
			leftCh <- outcome{c, cause}
		}()
		go func() {
			c, cause := right.build(ctx, base, scope)
			rightCh <- outcome{c, cause}
		}()

		leftOut, rightOut := <-leftCh, <-rightCh

		switch {
		case leftOut.cause != nil && rightOut.cause != nil:
			return nil, BothCauses(leftOut.cause, rightOut.cause)
		case leftOut.cause != nil:
			return nil, leftOut.cause
		case rightOut.cause != nil:
			return nil, rightOut.cause
		default:
			return ContextMerge(leftOut.ctxOut, rightOut.ctxOut), nil
		}
	})
}
