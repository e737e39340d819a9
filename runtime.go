package effectpy

import (
	"context"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/hookz"
)

// Hook event keys for Runtime supervisor events.
const (
	SupervisorEventStart   = hookz.Key("runtime.supervisor.start")
	SupervisorEventEnd     = hookz.Key("runtime.supervisor.end")
	SupervisorEventFailure = hookz.Key("runtime.supervisor.failure")
)

// SupervisorEvent is the type-erased notification delivered to supervisor
// hooks. Fiber is generic over its own E and A, but a single Runtime
// supervises fibers of many different instantiations, so the event
// carries only the identity and a rendered summary rather than the typed
// Fiber or Cause.
type SupervisorEvent struct {
	FiberID  FiberID
	Success  bool
	Rendered string // pretty-rendered Cause; empty for Start and for success
}

// Runtime owns a default environment and an optional supervisor. It is
// the entry point for both foreground evaluation (Run) and background
// evaluation (Fork).
type Runtime struct {
	baseEnv *Context
	hooks   *hookz.Hooks[SupervisorEvent]
	metrics MetricsRegistry
}

// RuntimeOption configures a Runtime at construction, mirroring pipz's
// With*-builder convention for wiring observability collaborators.
type RuntimeOption func(*Runtime)

// WithClock binds the Clock service into the runtime's base environment.
func WithClock(clock Clock) RuntimeOption {
	return func(r *Runtime) { r.baseEnv = ContextAdd(r.baseEnv, clockTag, clock) }
}

// WithRandom binds the Random service into the runtime's base environment.
func WithRandom(random Random) RuntimeOption {
	return func(r *Runtime) { r.baseEnv = ContextAdd(r.baseEnv, randomTag, random) }
}

// WithLogger binds the Logger service into the runtime's base environment.
func WithLogger(logger Logger) RuntimeOption {
	return func(r *Runtime) { r.baseEnv = ContextAdd(r.baseEnv, loggerTag, logger) }
}

// WithTracer binds the Tracer service into the runtime's base environment.
func WithTracer(tracer Tracer) RuntimeOption {
	return func(r *Runtime) { r.baseEnv = ContextAdd(r.baseEnv, tracerTag, tracer) }
}

// WithMetrics binds the MetricsRegistry service into the runtime's base
// environment and as the registry the Runtime reports its own fiber
// counters to.
func WithMetrics(metrics MetricsRegistry) RuntimeOption {
	return func(r *Runtime) {
		r.baseEnv = ContextAdd(r.baseEnv, metricsTag, metrics)
		r.metrics = metrics
	}
}

// WithSupervisor registers a supervisor hook handler invoked on fiber
// start, end, and failure.
func WithSupervisor(handler func(context.Context, SupervisorEvent) error) RuntimeOption {
	return func(r *Runtime) {
		_, _ = r.hooks.Hook(SupervisorEventStart, handler)
		_, _ = r.hooks.Hook(SupervisorEventEnd, handler)
		_, _ = r.hooks.Hook(SupervisorEventFailure, handler)
	}
}

// NewRuntime builds a Runtime over baseEnv, applying opts in order.
func NewRuntime(baseEnv *Context, opts ...RuntimeOption) *Runtime {
	if baseEnv == nil {
		baseEnv = NewContext()
	}
	rt := &Runtime{
		baseEnv: baseEnv,
		hooks:   hookz.New[SupervisorEvent](),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

const (
	runtimeFibersForkedMetric = "effectpy.runtime.fibers_forked"
	runtimeFibersDoneMetric   = "effectpy.runtime.fibers_done"
)

// Run evaluates m to completion in the foreground, under a fresh root
// scope that is closed before Run returns. A free function, not a method
// of Runtime, because Go methods cannot introduce type parameters beyond
// the receiver's.
func Run[E, A any](r *Runtime, ctx context.Context, m Computation[E, A]) Exit[E, A] {
	scope := NewScope("runtime.root")
	env := ContextAdd(r.baseEnv, scopeTag, scope)
	fs := newFiberState(nextFiberID(), newLocalsSnapshot())
	runCtx := withFiberState(ctx, fs)

	exit := m.Run(runCtx, env)
	_ = scope.Close(runCtx)
	return exit
}

// Fork begins background evaluation of m: the fiber starts Running and
// publishes its Exit to its result cell once evaluation completes.
func Fork[E, A any](r *Runtime, ctx context.Context, m Computation[E, A]) *Fiber[E, A] {
	parentFs := currentFiberState(ctx)
	id := nextFiberID()
	fs := newFiberState(id, parentFs.locals.fork())
	result := NewDeferred[E, A]()

	fiber := &Fiber[E, A]{id: id, result: result, fs: fs}

	scope := NewScope("fiber.scope")
	env := ContextAdd(r.baseEnv, scopeTag, scope)
	runCtx := withFiberState(ctx, fs)

	r.metrics.Counter(runtimeFibersForkedMetric).Inc()
	r.emitSupervisor(runCtx, SupervisorEventStart, SupervisorEvent{FiberID: id, Success: true})
	capitan.Info(runCtx, SignalFiberForked, FieldFiberID.Field(int(id)))

	go func() {
		exit := m.Run(runCtx, env)
		_ = scope.Close(runCtx)

		if exit.IsSuccess() {
			v, _ := exit.Value()

			fiber.status.Store(int32(FiberDone))
			r.metrics.Counter(runtimeFibersDoneMetric).Inc()
			r.emitSupervisor(runCtx, SupervisorEventEnd, SupervisorEvent{FiberID: id, Success: true})
			capitan.Info(runCtx, SignalFiberDone, FieldFiberID.Field(int(id)))
			result.Succeed(v)
			return
		}

		cause, _ := exit.Failure()

		if IsInterrupt(cause) {
			fiber.status.Store(int32(FiberInterrupted))
		} else {
			fiber.status.Store(int32(FiberDone))
		}

		r.metrics.Counter(runtimeFibersDoneMetric).Inc()
		r.emitSupervisor(runCtx, SupervisorEventFailure, SupervisorEvent{
			FiberID:  id,
			Success:  false,
			Rendered: PrettyRender(cause),
		})
		if IsInterrupt(cause) {
			capitan.Info(runCtx, SignalFiberInterrupted, FieldFiberID.Field(int(id)))
		} else {
			capitan.Warn(runCtx, SignalFiberDone, FieldFiberID.Field(int(id)), FieldError.Field(PrettyRender(cause)))
		}
		result.Fail(cause)
	}()

	return fiber
}

// emitSupervisor invokes supervisor hooks serially; a hook error becomes a
// Die on a diagnostics-only channel (logged) and never corrupts the
// supervised fiber's own outcome.
func (r *Runtime) emitSupervisor(ctx context.Context, key hookz.Key, event SupervisorEvent) {
	if r.hooks.ListenerCount(key) == 0 {
		return
	}
	if err := r.hooks.Emit(ctx, key, event); err != nil {
		loggerFromContext(r.baseEnv).Log(ctx, LevelError, "supervisor hook failed", map[string]string{
			"cause": PrettyRender(NewDie[Unit](err)),
		})
	}
}
