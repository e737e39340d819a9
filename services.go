package effectpy

import (
	"context"
	"math/rand"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Clock is the external time service consumed by Sleep, Timeout, Schedule
// delays in Retry/Repeat, and Instrument. The core calls only After and Now.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// clockzAdapter adapts a clockz.Clock to the narrow Clock interface the
// core consumes, following pipz's own WithClock/getClock convention of
// wrapping clockz.Clock directly rather than reinventing a timer service.
type clockzAdapter struct{ clock clockz.Clock }

func (c clockzAdapter) Now() time.Time                   { return c.clock.Now() }
func (c clockzAdapter) After(d time.Duration) <-chan time.Time { return c.clock.After(d) }

// NewClock wraps a clockz.Clock (clockz.RealClock in production,
// clockz.NewFakeClock() in tests) as the effectpy Clock service.
func NewClock(clock clockz.Clock) Clock { return clockzAdapter{clock: clock} }

var clockTag = NewTag[Clock]("effectpy.clock")

// clockFromContext resolves the Clock service, defaulting to the real
// wall clock when none was provided — sleeping and timing out are useful
// even in a Context built without an explicit clock layer.
func clockFromContext(env *Context) Clock {
	if c, ok := ContextGet(env, clockTag); ok {
		return c
	}
	return NewClock(clockz.RealClock)
}

// Sleep suspends for d, honoring fiber interruption and the Clock service
// bound in the environment.
func Sleep[E any](d time.Duration) Computation[E, Unit] {
	return Computation[E, Unit]{run: func(ctx context.Context, env *Context) Exit[E, Unit] {
		fs := currentFiberState(ctx)
		clock := clockFromContext(env)
		timer := clock.After(d)
		done := make(chan struct{})
		go func() {
			<-timer
			close(done)
		}()
		if interrupted := awaitSuspension(ctx, fs, done); interrupted {
			return ExitFail[E, Unit](NewInterrupt[E](fs.id))
		}
		return ExitSucceed[E, Unit](unit)
	}}
}

// Random is the external randomness service consumed by jittered
// schedules.
type Random interface {
	NextFloat64() float64
	NextInt64() int64
}

var randomTag = NewTag[Random]("effectpy.random")

func randomFromContext(env *Context) Random {
	if r, ok := ContextGet(env, randomTag); ok {
		return r
	}
	return defaultRandom{}
}

// defaultRandom backs jittered schedules when no Random service is bound
// in the environment.
type defaultRandom struct{}

func (defaultRandom) NextFloat64() float64 { return rand.Float64() }
func (defaultRandom) NextInt64() int64     { return rand.Int63() }

// LogLevel is the severity of a Logger call, from Trace to Error.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the structured logging service.
type Logger interface {
	Log(ctx context.Context, level LogLevel, message string, tags map[string]string)
}

// capitanLogger forwards to capitan signal emission so user code and the
// instrumentation layer share one structured-logging path.
type capitanLogger struct{}

// NewLogger returns the capitan-backed Logger service.
func NewLogger() Logger { return capitanLogger{} }

var (
	logSignalTrace capitan.Signal = "effectpy.log.trace"
	logSignalDebug capitan.Signal = "effectpy.log.debug"
	logSignalInfo  capitan.Signal = "effectpy.log.info"
	logSignalWarn  capitan.Signal = "effectpy.log.warn"
	logSignalError capitan.Signal = "effectpy.log.error"

	logFieldMessage = capitan.NewStringKey("message")
)

func (capitanLogger) Log(ctx context.Context, level LogLevel, message string, tags map[string]string) {
	fields := make([]capitan.Field, 0, len(tags)+1)
	fields = append(fields, logFieldMessage.Field(message))
	for k, v := range tags {
		fields = append(fields, capitan.NewStringKey(k).Field(v))
	}
	switch level {
	case LevelTrace, LevelDebug:
		capitan.Info(ctx, logSignalDebug, fields...)
	case LevelWarn:
		capitan.Warn(ctx, logSignalWarn, fields...)
	case LevelError:
		capitan.Error(ctx, logSignalError, fields...)
	default:
		capitan.Info(ctx, logSignalInfo, fields...)
	}
}

var loggerTag = NewTag[Logger]("effectpy.logger")

func loggerFromContext(env *Context) Logger {
	if l, ok := ContextGet(env, loggerTag); ok {
		return l
	}
	return NewLogger()
}

// MetricsRegistry is the counters/gauges/histograms service. The core
// reaches it from Instrument, from Retry's attempt/exhausted counters, and
// from the Runtime's fiber forked/done counters.
type MetricsRegistry interface {
	Counter(name string) Counter
	Gauge(name string) Gauge
	Histogram(name string) Histogram
}

type Counter interface{ Inc() }
type Gauge interface{ Set(v float64) }
type Histogram interface{ Observe(v float64) }

// metriczRegistry adapts a metricz.Registry to MetricsRegistry.
type metriczRegistry struct{ reg *metricz.Registry }

// NewMetricsRegistry wraps a fresh metricz.Registry.
func NewMetricsRegistry() MetricsRegistry {
	return metriczRegistry{reg: metricz.New()}
}

func (m metriczRegistry) Counter(name string) Counter {
	key := metricz.Key(name)
	m.reg.Counter(key)
	return metriczCounter{reg: m.reg, key: key}
}

func (m metriczRegistry) Gauge(name string) Gauge {
	key := metricz.Key(name)
	m.reg.Gauge(key)
	return metriczGauge{reg: m.reg, key: key}
}

func (m metriczRegistry) Histogram(name string) Histogram {
	key := metricz.Key(name)
	m.reg.Histogram(key)
	return metriczHistogram{reg: m.reg, key: key}
}

type metriczCounter struct {
	reg *metricz.Registry
	key metricz.Key
}

func (c metriczCounter) Inc() { c.reg.Counter(c.key).Inc() }

type metriczGauge struct {
	reg *metricz.Registry
	key metricz.Key
}

func (g metriczGauge) Set(v float64) { g.reg.Gauge(g.key).Set(v) }

type metriczHistogram struct {
	reg *metricz.Registry
	key metricz.Key
}

func (h metriczHistogram) Observe(v float64) { h.reg.Histogram(h.key).Observe(v) }

var metricsTag = NewTag[MetricsRegistry]("effectpy.metrics")

func metricsFromContext(env *Context) MetricsRegistry {
	if m, ok := ContextGet(env, metricsTag); ok {
		return m
	}
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) Counter(string) Counter     { return noopCounter{} }
func (noopMetrics) Gauge(string) Gauge         { return noopGauge{} }
func (noopMetrics) Histogram(string) Histogram { return noopHistogram{} }

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

type noopHistogram struct{}

func (noopHistogram) Observe(float64) {}

// Span is the tracing handle.
type Span interface {
	AddEvent(name string, attrs map[string]string)
	End()
}

// Tracer is the external tracing service.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, Span)
}

type tracezTracer struct{ tracer *tracez.Tracer }

// NewTracer wraps a fresh tracez.Tracer.
func NewTracer() Tracer { return tracezTracer{tracer: tracez.New()} }

func (t tracezTracer) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, Span) {
	ctx, span := t.tracer.StartSpan(ctx, tracez.Key(name))
	for k, v := range attrs {
		span.SetTag(tracez.Tag(k), v)
	}
	return ctx, tracezSpan{span: span}
}

type tracezSpan struct{ span *tracez.ActiveSpan }

func (s tracezSpan) AddEvent(name string, attrs map[string]string) {
	for k, v := range attrs {
		s.span.SetTag(tracez.Tag(name+"."+k), v)
	}
}

func (s tracezSpan) End() { s.span.Finish() }

var tracerTag = NewTag[Tracer]("effectpy.tracer")

func tracerFromContext(env *Context) Tracer {
	if t, ok := ContextGet(env, tracerTag); ok {
		return t
	}
	return noopTracer{}
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) AddEvent(string, map[string]string) {}
func (noopSpan) End()                                {}

// Instrument wraps m so every run is traced (tracerFromContext) and timed
// into the named histogram of metricsFromContext, with success and
// failure counters alongside.
func Instrument[E, A any](name string, m Computation[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		tracer := tracerFromContext(env)
		ctx, span := tracer.StartSpan(ctx, name, nil)
		defer span.End()

		start := clockFromContext(env).Now()
		exit := m.Run(ctx, env)
		elapsed := clockFromContext(env).Now().Sub(start)

		metrics := metricsFromContext(env)
		metrics.Histogram(name + ".duration_ms").Observe(float64(elapsed.Milliseconds()))
		if exit.IsSuccess() {
			metrics.Counter(name + ".success").Inc()
			span.AddEvent("success", nil)
		} else {
			metrics.Counter(name + ".failure").Inc()
			span.AddEvent("failure", nil)
		}
		return exit
	}}
}
