package effectpy

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
)

// scopeFinalizerFailedKey is the hookz event key diagnostics listeners
// subscribe to via Scope.OnFinalizerFailure.
const scopeFinalizerFailedKey = hookz.Key("scope.finalizer-failed")

// Finalizer is a release action registered on a Scope. It may report a
// failure (a defect — finalizers never carry a typed failure), but it
// must not panic; a panicking finalizer is recovered and folded into the
// same defect channel.
type Finalizer func(ctx context.Context) error

// ScopeFinalizerFailure is the event emitted on the diagnostics hook when a
// finalizer fails. It never affects the outcome of the computation the
// scope is attached to — only the scope's own Close result.
type ScopeFinalizerFailure struct {
	Index int
	Err   error
	At    time.Time
}

// Scope is the LIFO release registry: finalizers are appended in
// acquisition order and released in strict reverse order on Close. A
// Scope is single-use — Close is idempotent, and a Finalizer registered
// after Close runs immediately.
type Scope struct {
	mu         sync.Mutex
	finalizers []Finalizer
	closed     bool

	clock  clockz.Clock
	hooks  *hookz.Hooks[ScopeFinalizerFailure]
	name   Name
}

// NewScope creates an empty, open Scope.
func NewScope(name Name) *Scope {
	return &Scope{
		name:  name,
		clock: clockz.RealClock,
		hooks: hookz.New[ScopeFinalizerFailure](),
	}
}

// WithClock overrides the scope's clock, used by tests to control the
// timestamps attached to finalizer-failure diagnostics.
func (s *Scope) WithClock(clock clockz.Clock) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// OnFinalizerFailure registers a diagnostics listener invoked whenever a
// finalizer fails during Close. This is a side channel: it never changes
// the Scope's own Close result nor the outcome of the computation under
// the scope.
func (s *Scope) OnFinalizerFailure(handler func(context.Context, ScopeFinalizerFailure) error) error {
	_, err := s.hooks.Hook(scopeFinalizerFailedKey, handler)
	return err
}

// AddFinalizer appends f to the end of the release list. If the scope is
// already closed, f runs immediately (and its error, if any, is returned).
func (s *Scope) AddFinalizer(ctx context.Context, f Finalizer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return runFinalizerSafely(ctx, f)
	}
	s.finalizers = append(s.finalizers, f)
	s.mu.Unlock()
	return nil
}

// Close releases every registered finalizer in strict reverse insertion
// order. Every finalizer is attempted regardless of prior failures; their
// errors are aggregated into a single Cause (Then between the
// temporally-ordered releases) and returned as a Go error via
// NewCauseError. Close is idempotent: a second call is a no-op returning
// nil.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	finalizers := s.finalizers
	s.finalizers = nil
	s.mu.Unlock()

	var combined Cause[Unit]
	for i := len(finalizers) - 1; i >= 0; i-- {
		err := runFinalizerSafely(ctx, finalizers[i])
		if err == nil {
			continue
		}
		leaf := NewDie[Unit](err)
		combined = Then(combined, leaf)

		failure := ScopeFinalizerFailure{Index: i, Err: err, At: s.clock.Now()}
		_ = s.hooks.Emit(ctx, scopeFinalizerFailedKey, failure) //nolint:errcheck

		capitan.Warn(ctx, SignalScopeClosed,
			FieldName.Field(string(s.name)),
			FieldError.Field(err.Error()),
			FieldTimestamp.Field(float64(s.clock.Now().Unix())),
		)
	}

	if combined == nil {
		capitan.Info(ctx, SignalScopeClosed,
			FieldName.Field(string(s.name)),
			FieldTimestamp.Field(float64(s.clock.Now().Unix())),
		)
		return nil
	}
	return NewCauseError(combined)
}

// runFinalizerSafely runs f in an uninterruptible region, recovering a
// panic into an error so a single broken finalizer can never abort the
// release of its siblings.
func runFinalizerSafely(ctx context.Context, f Finalizer) (err error) {
	fs := currentFiberState(ctx)
	fs.pushMask()
	defer fs.popMask()
	defer func() {
		if r := recover(); r != nil {
			err = panicDefect{value: r}
		}
	}()
	return f(ctx)
}

type panicDefect struct{ value any }

func (p panicDefect) Error() string { return "effectpy: finalizer panicked" }
