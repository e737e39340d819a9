package effectpy

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// Schedule is a decision automaton driving recurrence: given the state
// left over from the previous decision and the latest input, it decides
// whether to continue (and after what delay) or halt. Kept as a struct of
// closures, in the same style as pipz wraps retry policy as plain
// functions rather than an interface hierarchy.
type Schedule[In any] struct {
	name Name
	step func(state scheduleState, in In) scheduleDecision
}

type scheduleState struct {
	attempt  int
	elapsed  time.Duration
	prev     time.Duration // delay most recently produced, for exponential/fibonacci
	prevPrev time.Duration
	phase    int // used by AndThen to remember which operand is driving decisions
}

type scheduleDecision struct {
	state   scheduleState
	delay   time.Duration
	cont    bool
}

func initialScheduleState() scheduleState { return scheduleState{} }

// Recurs halts after n decisions (attempts 1..n), with zero delay between
// them. Compose with Spaced/Exponential to add delay.
func Recurs[In any](n int) Schedule[In] {
	return Schedule[In]{name: "recurs", step: func(state scheduleState, _ In) scheduleDecision {
		next := state
		next.attempt++
		return scheduleDecision{state: next, delay: 0, cont: next.attempt <= n}
	}}
}

// Spaced recurs forever with a fixed delay between decisions.
func Spaced[In any](d time.Duration) Schedule[In] {
	return Schedule[In]{name: "spaced", step: func(state scheduleState, _ In) scheduleDecision {
		next := state
		next.attempt++
		return scheduleDecision{state: next, delay: d, cont: true}
	}}
}

// Exponential recurs forever with delay base, base*factor, base*factor^2, ...
func Exponential[In any](base time.Duration, factor float64) Schedule[In] {
	if factor <= 0 {
		factor = 2
	}
	return Schedule[In]{name: "exponential", step: func(state scheduleState, _ In) scheduleDecision {
		next := state
		next.attempt++
		delay := base
		if state.attempt > 0 {
			delay = time.Duration(float64(state.prev) * factor)
		}
		next.prev = delay
		return scheduleDecision{state: next, delay: delay, cont: true}
	}}
}

// Fibonacci recurs forever with delays following the Fibonacci sequence
// scaled by base: base, base, 2*base, 3*base, 5*base, ...
func Fibonacci[In any](base time.Duration) Schedule[In] {
	return Schedule[In]{name: "fibonacci", step: func(state scheduleState, _ In) scheduleDecision {
		next := state
		next.attempt++
		var delay time.Duration
		switch state.attempt {
		case 0:
			delay = base
		case 1:
			delay = base
		default:
			delay = state.prev + state.prevPrev
		}
		next.prevPrev = state.prev
		next.prev = delay
		return scheduleDecision{state: next, delay: delay, cont: true}
	}}
}

// Jittered wraps a schedule so each decision's delay is scaled by a random
// factor in [low, high), drawn from the given Random service.
// low and high default to 0 and 1 when both are zero.
func Jittered[In any](inner Schedule[In], low, high float64, random Random) Schedule[In] {
	if low == 0 && high == 0 {
		low, high = 0, 1
	}
	return Schedule[In]{name: inner.name + ".jittered", step: func(state scheduleState, in In) scheduleDecision {
		d := inner.step(state, in)
		if !d.cont {
			return d
		}
		scale := low + random.NextFloat64()*(high-low)
		d.delay = time.Duration(float64(d.delay) * scale)
		return d
	}}
}

// AndThen runs first until it halts, then continues decisions using
// second, renumbering second's attempts from 1. Once
// control has passed to second it never falls back to first — phase is
// sticky on scheduleState so second's own progress accumulates normally
// instead of being reset on every subsequent decision.
func AndThen[In any](first, second Schedule[In]) Schedule[In] {
	return Schedule[In]{name: first.name + ".and_then." + second.name, step: func(state scheduleState, in In) scheduleDecision {
		if state.phase == 1 {
			return second.step(state, in)
		}
		d := first.step(state, in)
		if d.cont {
			return d
		}
		d2 := second.step(initialScheduleState(), in)
		d2.state.phase = 1
		return d2
	}}
}

// UpTo caps inner's total elapsed delay: once the running sum of produced
// delays would exceed total, the schedule halts.
func UpTo[In any](inner Schedule[In], total time.Duration) Schedule[In] {
	return Schedule[In]{name: inner.name + ".up_to", step: func(state scheduleState, in In) scheduleDecision {
		d := inner.step(state, in)
		if !d.cont {
			return d
		}
		newElapsed := state.elapsed + d.delay
		if newElapsed > total {
			d.cont = false
			return d
		}
		d.state.elapsed = newElapsed
		return d
	}}
}

// WhileInput halts as soon as p(in) is false for the input driving the
// next decision.
func WhileInput[In any](inner Schedule[In], p func(In) bool) Schedule[In] {
	return Schedule[In]{name: inner.name + ".while_input", step: func(state scheduleState, in In) scheduleDecision {
		if !p(in) {
			return scheduleDecision{state: state, cont: false}
		}
		return inner.step(state, in)
	}}
}

// WhileOutput halts once a produced delay fails p.
func WhileOutput[In any](inner Schedule[In], p func(time.Duration) bool) Schedule[In] {
	return Schedule[In]{name: inner.name + ".while_output", step: func(state scheduleState, in In) scheduleDecision {
		d := inner.step(state, in)
		if d.cont && !p(d.delay) {
			d.cont = false
		}
		return d
	}}
}

// Schedule metric names.
const (
	retryMetricAttempts  = "effectpy.schedule.attempts"
	retryMetricExhausted = "effectpy.schedule.exhausted"
)

// Retry re-evaluates m, feeding its typed error into sched as input, until
// sched halts or m succeeds. Die and Interrupt causes are never retried —
// only the typed E channel.
func Retry[E, A any](m Computation[E, A], sched Schedule[E]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		fs := currentFiberState(ctx)
		clock := clockFromContext(env)
		metrics := metricsFromContext(env)
		state := initialScheduleState()

		for {
			exit := m.Run(ctx, env)
			if exit.IsSuccess() {
				return exit
			}
			cause, _ := exit.Failure()
			if !IsFail(cause) {
				return exit // Die/Interrupt: not retried
			}
			errVal, _, _, _, _ := Squash(cause)

			decision := sched.step(state, errVal)
			if !decision.cont {
				metrics.Counter(retryMetricExhausted).Inc()
				capitan.Warn(ctx, SignalScheduleHalt, FieldAttempt.Field(state.attempt))
				return exit
			}
			state = decision.state
			metrics.Counter(retryMetricAttempts).Inc()
			capitan.Info(ctx, SignalScheduleContinue, FieldAttempt.Field(state.attempt), FieldDelayMillis.Field(float64(decision.delay.Milliseconds())))

			if decision.delay > 0 {
				done := make(chan struct{})
				timer := clock.After(decision.delay)
				go func() { <-timer; close(done) }()
				if interrupted := awaitSuspension(ctx, fs, done); interrupted {
					return ExitFail[E, A](NewInterrupt[E](fs.id))
				}
			}
		}
	}}
}

// Repeat re-evaluates m on SUCCESS, feeding its value into sched as input,
// until sched halts; it returns the last successful value, or the first
// failure if m ever fails.
func Repeat[E, A any](m Computation[E, A], sched Schedule[A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		fs := currentFiberState(ctx)
		clock := clockFromContext(env)
		state := initialScheduleState()
		var last Exit[E, A]

		for {
			last = m.Run(ctx, env)
			if last.IsFailure() {
				return last
			}
			v, _ := last.Value()
			decision := sched.step(state, v)
			if !decision.cont {
				return last
			}
			state = decision.state
			capitan.Info(ctx, SignalScheduleContinue, FieldAttempt.Field(state.attempt), FieldDelayMillis.Field(float64(decision.delay.Milliseconds())))

			if decision.delay > 0 {
				done := make(chan struct{})
				timer := clock.After(decision.delay)
				go func() { <-timer; close(done) }()
				if interrupted := awaitSuspension(ctx, fs, done); interrupted {
					return ExitFail[E, A](NewInterrupt[E](fs.id))
				}
			}
		}
	}}
}
