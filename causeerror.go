package effectpy

import "fmt"

// CauseError adapts a Cause[E] to the standard error interface so a failed
// Exit can cross into ordinary Go error-handling code — for example at a
// Fiber.Join() boundary, or wherever a caller expects a plain error rather
// than a three-channel Cause. It mirrors the role pipz's Error[T] plays in
// carrying a rich processing failure across an API that only knows about
// error.
type CauseError[E any] struct {
	Cause Cause[E]
}

// NewCauseError wraps a Cause as a Go error. Returns nil if cause is nil,
// so it composes cleanly with "if err := ...; err != nil" call sites.
func NewCauseError[E any](cause Cause[E]) error {
	if cause == nil {
		return nil
	}
	return &CauseError[E]{Cause: cause}
}

// Error renders the cause's squashed representative failure as one line:
// the typed error for a Fail, the defect for a Die, or the interrupting
// fiber (when known) for an Interrupt.
func (e *CauseError[E]) Error() string {
	err, defect, fiberID, hasFiberID, kind := Squash(e.Cause)
	switch kind {
	case KindFail:
		return fmt.Sprintf("effectpy: failed: %v", err)
	case KindDie:
		return fmt.Sprintf("effectpy: died: %v", defect)
	case KindInterrupt:
		if hasFiberID {
			return fmt.Sprintf("effectpy: interrupted by fiber %d", fiberID)
		}
		return "effectpy: interrupted"
	default:
		return "effectpy: " + PrettyRender(e.Cause)
	}
}

// Unwrap exposes the squashed defect as the Go error chain's cause when the
// cause is a Die wrapping an error value, letting errors.As reach through
// to it.
func (e *CauseError[E]) Unwrap() error {
	_, defect, _, _, kind := Squash(e.Cause)
	if kind != KindDie {
		return nil
	}
	if err, ok := defect.(error); ok {
		return err
	}
	return nil
}

// IsFail reports whether the wrapped cause contains a typed failure leaf.
func (e *CauseError[E]) IsFail() bool { return IsFail(e.Cause) }

// IsDie reports whether the wrapped cause contains a defect leaf.
func (e *CauseError[E]) IsDie() bool { return IsDie(e.Cause) }

// IsInterrupt reports whether the wrapped cause contains an interrupt leaf.
func (e *CauseError[E]) IsInterrupt() bool { return IsInterrupt(e.Cause) }
