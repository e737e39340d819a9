// Package effectpytest provides test utilities for effectpy-based code:
// a configurable mock Computation, a fake-clock schedule-advancement
// helper, and Exit assertion helpers — the counterpart of pipz's
// testing/helpers.go MockProcessor, adapted to effectpy's Computation and
// Exit types instead of pipz's Chainable.
package effectpytest

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stukennedy/effectpy"
)

// MockCall records one invocation of a Computation produced by Make.
type MockCall[In any] struct {
	Input     In
	Timestamp time.Time
}

// MockComputation is a configurable stand-in for an effectpy.Computation[E,A]:
// it tracks every call and can be made to succeed, fail, die, delay, or
// panic on demand. Configuration is read fresh each time Make's resulting
// Computation runs, so a test may reconfigure the mock between calls.
type MockComputation[E, A any] struct {
	t    *testing.T
	name string

	mu          sync.Mutex
	callHistory []MockCall[A]
	maxHistory  int

	returnVal A
	returnErr E
	hasErr    bool
	dieWith   error
	delay     time.Duration
	panicMsg  string

	callCount int64 // atomic
}

// NewMockComputation creates a mock with the given diagnostic name,
// defaulting to always succeeding with A's zero value.
func NewMockComputation[E, A any](t *testing.T, name string) *MockComputation[E, A] {
	return &MockComputation[E, A]{t: t, name: name, maxHistory: 100}
}

// WithSuccess configures the mock to succeed with val.
func (m *MockComputation[E, A]) WithSuccess(val A) *MockComputation[E, A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnVal = val
	m.hasErr = false
	m.dieWith = nil
	return m
}

// WithFailure configures the mock to fail with a typed error.
func (m *MockComputation[E, A]) WithFailure(err E) *MockComputation[E, A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnErr = err
	m.hasErr = true
	m.dieWith = nil
	return m
}

// WithDie configures the mock to fail with a defect.
func (m *MockComputation[E, A]) WithDie(defect error) *MockComputation[E, A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dieWith = defect
	m.hasErr = false
	return m
}

// WithDelay configures the mock's Computation to sleep for d before
// resolving, honoring fiber interruption the same way effectpy.Sleep does.
func (m *MockComputation[E, A]) WithDelay(d time.Duration) *MockComputation[E, A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithPanic configures the mock to panic with msg, exercising effectpy's
// panic-to-Die recovery at Computation.Run.
func (m *MockComputation[E, A]) WithPanic(msg string) *MockComputation[E, A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// Make returns a Computation[E,A] bound to this mock's current
// configuration, recording input as a call each time it runs. It is built
// purely from effectpy's exported combinators — MockComputation lives
// outside the effectpy package and has no access to Computation's
// unexported run field.
func (m *MockComputation[E, A]) Make(input A) effectpy.Computation[E, A] {
	return effectpy.FlatMap(effectpy.Suspend(m.pacer), func(effectpy.Unit) effectpy.Computation[E, A] {
		return m.invoke(input)
	})
}

func (m *MockComputation[E, A]) pacer() effectpy.Computation[E, effectpy.Unit] {
	m.mu.Lock()
	d := m.delay
	m.mu.Unlock()
	if d <= 0 {
		return effectpy.Succeed[E, effectpy.Unit](effectpy.Unit{})
	}
	return effectpy.Sleep[E](d)
}

func (m *MockComputation[E, A]) invoke(input A) effectpy.Computation[E, A] {
	atomic.AddInt64(&m.callCount, 1)

	m.mu.Lock()
	if m.maxHistory > 0 {
		m.callHistory = append(m.callHistory, MockCall[A]{Input: input, Timestamp: time.Now()})
		if len(m.callHistory) > m.maxHistory {
			m.callHistory = m.callHistory[1:]
		}
	}
	panicMsg := m.panicMsg
	dieWith := m.dieWith
	hasErr := m.hasErr
	returnErr := m.returnErr
	returnVal := m.returnVal
	m.mu.Unlock()

	if panicMsg != "" {
		panic(panicMsg)
	}
	if dieWith != nil {
		return effectpy.Die[E, A](dieWith)
	}
	if hasErr {
		return effectpy.Fail[E, A](returnErr)
	}
	return effectpy.Succeed[E, A](returnVal)
}

// CallCount returns the number of times a Computation produced by Make has
// run.
func (m *MockComputation[E, A]) CallCount() int {
	return int(atomic.LoadInt64(&m.callCount))
}

// CallHistory returns a copy of every recorded call, oldest first.
func (m *MockComputation[E, A]) CallHistory() []MockCall[A] {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall[A], len(m.callHistory))
	copy(out, m.callHistory)
	return out
}

// AssertCallCount verifies the mock ran exactly n times.
func AssertCallCount[E, A any](t *testing.T, m *MockComputation[E, A], n int) {
	t.Helper()
	if got := m.CallCount(); got != n {
		t.Errorf("expected mock %q to run %d times, ran %d times", m.name, n, got)
	}
}

// AssertExitSuccess asserts exit succeeded and returns its value.
func AssertExitSuccess[E, A any](t *testing.T, exit effectpy.Exit[E, A]) A {
	t.Helper()
	v, ok := exit.Value()
	if !ok {
		t.Fatalf("expected Success, got %v", exit)
	}
	return v
}

// AssertExitFailure asserts exit failed and returns its Cause.
func AssertExitFailure[E, A any](t *testing.T, exit effectpy.Exit[E, A]) effectpy.Cause[E] {
	t.Helper()
	cause, ok := exit.Failure()
	if !ok {
		t.Fatalf("expected Failure, got %v", exit)
	}
	return cause
}

// AssertExitFailWith asserts exit failed with a typed Fail leaf equal to
// want.
func AssertExitFailWith[E comparable, A any](t *testing.T, exit effectpy.Exit[E, A], want E) {
	t.Helper()
	cause := AssertExitFailure(t, exit)
	if !effectpy.IsFail(cause) {
		t.Fatalf("expected a typed Fail(%v), got a Die or Interrupt: %v", want, cause)
	}
	got, _, _, _, _ := effectpy.Squash(cause)
	if got != want {
		t.Fatalf("expected Fail(%v), got Fail(%v)", want, got)
	}
}

// fakeClock is the narrow surface AdvanceClock needs from a
// clockz.NewFakeClock() value, kept as a local interface so this package
// doesn't need its own clockz import.
type fakeClock interface {
	Advance(d time.Duration)
	BlockUntilReady()
}

// AdvanceClock advances a fake clock by d, giving the goroutine under test
// a brief grace period to register its timer first — the same
// sleep/Advance/BlockUntilReady sequence pipz's own backoff_test.go uses
// against clockz.NewFakeClock() to drive Retry/Repeat/Sleep deterministically.
func AdvanceClock(clock fakeClock, d time.Duration) {
	time.Sleep(5 * time.Millisecond)
	clock.Advance(d)
	clock.BlockUntilReady()
}
