package effectpy

import (
	"fmt"
	"strings"
)

// Defect is the payload of an unexpected, non-typed failure: a bug, a
// panic value, or an assertion violation. Unlike a typed failure it is not
// part of a Computation's declared error channel.
type Defect = any

// Cause is the algebra of abnormal outcomes described in the data model:
// leaves Fail, Die, and Interrupt, and internal nodes Then, Both, and
// Annotated. Cause values are immutable trees; composing two causes never
// mutates either operand.
//
// Cause is a closed sum type emulated with an unexported marker method, the
// same pattern used throughout the Go standard library's ast package for
// sealed interfaces.
type Cause[E any] interface {
	isCause()
}

// FailCause is a typed, expected failure: the user-declared error channel.
type FailCause[E any] struct {
	Err E
}

func (FailCause[E]) isCause() {}

// DieCause is an unexpected defect: a bug, a recovered panic, or an
// assertion violation. It is never intercepted by CatchAll.
type DieCause[E any] struct {
	Defect Defect
}

func (DieCause[E]) isCause() {}

// InterruptCause marks cooperative cancellation, optionally attributing it
// to the fiber that requested it.
type InterruptCause[E any] struct {
	FiberID    FiberID
	HasFiberID bool
}

func (InterruptCause[E]) isCause() {}

// ThenCause composes two causes that arose in sequence: Right happened
// after Left (for example, a finalizer that failed after the computation
// it was cleaning up after).
type ThenCause[E any] struct {
	Left, Right Cause[E]
}

func (ThenCause[E]) isCause() {}

// BothCause composes two causes that arose concurrently and independently,
// such as two children of a parallel combinator that both failed before
// either could cancel the other.
type BothCause[E any] struct {
	Left, Right Cause[E]
}

func (BothCause[E]) isCause() {}

// AnnotatedCause attaches a contextual note to an inner cause. Annotations
// are transparent to IsFail, IsDie, IsInterrupt, and Squash — they exist
// purely for diagnostics and PrettyRender.
type AnnotatedCause[E any] struct {
	Inner Cause[E]
	Note  string
}

func (AnnotatedCause[E]) isCause() {}

// NewFail builds a Cause from a typed failure value.
func NewFail[E any](err E) Cause[E] { return FailCause[E]{Err: err} }

// NewDie builds a Cause from an unexpected defect.
func NewDie[E any](defect Defect) Cause[E] { return DieCause[E]{Defect: defect} }

// NewInterrupt builds a Cause representing cancellation, attributed to the
// given fiber.
func NewInterrupt[E any](id FiberID) Cause[E] {
	return InterruptCause[E]{FiberID: id, HasFiberID: true}
}

// NewInterruptUnattributed builds an interrupt cause with no known origin
// fiber.
func NewInterruptUnattributed[E any]() Cause[E] {
	return InterruptCause[E]{}
}

// Then sequences two causes: right arose after left.
func Then[E any](left, right Cause[E]) Cause[E] {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return ThenCause[E]{Left: left, Right: right}
}

// BothCauses composes two causes that arose concurrently.
func BothCauses[E any](left, right Cause[E]) Cause[E] {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return BothCause[E]{Left: left, Right: right}
}

// Annotate attaches a diagnostic note to a cause.
func Annotate[E any](inner Cause[E], note string) Cause[E] {
	if inner == nil {
		return nil
	}
	return AnnotatedCause[E]{Inner: inner, Note: note}
}

func unwrapAnnotations[E any](c Cause[E]) Cause[E] {
	for {
		a, ok := c.(AnnotatedCause[E])
		if !ok {
			return c
		}
		c = a.Inner
	}
}

// IsFail reports whether any leaf of the cause is a typed failure.
func IsFail[E any](c Cause[E]) bool {
	found := false
	walkCause(c, func(leaf Cause[E]) {
		if _, ok := leaf.(FailCause[E]); ok {
			found = true
		}
	})
	return found
}

// IsDie reports whether any leaf of the cause is a defect.
func IsDie[E any](c Cause[E]) bool {
	found := false
	walkCause(c, func(leaf Cause[E]) {
		if _, ok := leaf.(DieCause[E]); ok {
			found = true
		}
	})
	return found
}

// IsInterrupt reports whether any leaf of the cause is an interruption.
func IsInterrupt[E any](c Cause[E]) bool {
	found := false
	walkCause(c, func(leaf Cause[E]) {
		if _, ok := leaf.(InterruptCause[E]); ok {
			found = true
		}
	})
	return found
}

// walkCause visits every leaf of the cause tree, transparently unwrapping
// Annotated and internal nodes.
func walkCause[E any](c Cause[E], visit func(leaf Cause[E])) {
	if c == nil {
		return
	}
	c = unwrapAnnotations(c)
	switch n := c.(type) {
	case ThenCause[E]:
		walkCause(n.Left, visit)
		walkCause(n.Right, visit)
	case BothCause[E]:
		walkCause(n.Left, visit)
		walkCause(n.Right, visit)
	default:
		visit(c)
	}
}

// FoldCause reduces a cause tree to a single value, given handlers for each
// leaf kind and a combiner for internal nodes. Annotations are unwrapped
// transparently before dispatch.
func FoldCause[E, B any](
	c Cause[E],
	onFail func(E) B,
	onDie func(Defect) B,
	onInterrupt func(id FiberID, known bool) B,
	combine func(left, right B) B,
) B {
	c = unwrapAnnotations(c)
	switch n := c.(type) {
	case FailCause[E]:
		return onFail(n.Err)
	case DieCause[E]:
		return onDie(n.Defect)
	case InterruptCause[E]:
		return onInterrupt(n.FiberID, n.HasFiberID)
	case ThenCause[E]:
		return combine(FoldCause(n.Left, onFail, onDie, onInterrupt, combine), FoldCause(n.Right, onFail, onDie, onInterrupt, combine))
	case BothCause[E]:
		return combine(FoldCause(n.Left, onFail, onDie, onInterrupt, combine), FoldCause(n.Right, onFail, onDie, onInterrupt, combine))
	default:
		var zero B
		return zero
	}
}

// Squash picks a single representative failure from a cause tree,
// preferring the left-most leaf in evaluation order. It is used where a Go
// call site needs exactly one error value (for example, adapting a Cause
// to the standard error interface).
func Squash[E any](c Cause[E]) (err E, defect Defect, interruptID FiberID, hasFiberID bool, kind CauseKind) {
	c = unwrapAnnotations(c)
	switch n := c.(type) {
	case FailCause[E]:
		return n.Err, nil, 0, false, KindFail
	case DieCause[E]:
		var zero E
		return zero, n.Defect, 0, false, KindDie
	case InterruptCause[E]:
		var zero E
		return zero, nil, n.FiberID, n.HasFiberID, KindInterrupt
	case ThenCause[E]:
		return Squash(n.Left)
	case BothCause[E]:
		return Squash(n.Left)
	default:
		var zero E
		return zero, nil, 0, false, KindInterrupt
	}
}

// CauseKind discriminates the leaf kind a cause squashes to.
type CauseKind int

const (
	KindFail CauseKind = iota
	KindDie
	KindInterrupt
)

// PrettyRender renders a Cause tree to a human-readable multi-line string,
// including annotations, for logs and top-level defect reporting.
func PrettyRender[E any](c Cause[E]) string {
	var b strings.Builder
	renderCause(&b, c, 0)
	return b.String()
}

func renderCause[E any](b *strings.Builder, c Cause[E], depth int) {
	indent := strings.Repeat("  ", depth)
	if c == nil {
		fmt.Fprintf(b, "%s<empty>\n", indent)
		return
	}
	switch n := c.(type) {
	case FailCause[E]:
		fmt.Fprintf(b, "%sFail: %v\n", indent, n.Err)
	case DieCause[E]:
		fmt.Fprintf(b, "%sDie: %v\n", indent, n.Defect)
	case InterruptCause[E]:
		if n.HasFiberID {
			fmt.Fprintf(b, "%sInterrupt(fiber=%d)\n", indent, n.FiberID)
		} else {
			fmt.Fprintf(b, "%sInterrupt\n", indent)
		}
	case ThenCause[E]:
		fmt.Fprintf(b, "%sThen:\n", indent)
		renderCause(b, n.Left, depth+1)
		renderCause(b, n.Right, depth+1)
	case BothCause[E]:
		fmt.Fprintf(b, "%sBoth:\n", indent)
		renderCause(b, n.Left, depth+1)
		renderCause(b, n.Right, depth+1)
	case AnnotatedCause[E]:
		fmt.Fprintf(b, "%sAnnotated(%q):\n", indent, n.Note)
		renderCause(b, n.Inner, depth+1)
	}
}
