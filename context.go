package effectpy

// Tag[T] is a compile-time-typed key into a Context. Each call to NewTag[T]
// mints a distinct token even if two tags are declared for the same Go
// type T — a phantom-type-parameterized builder used as an alternative to
// reflection-based type keys, the same pattern pumped-go's Executor/Tag
// machinery uses to key typed values without reflection.
type Tag[T any] struct {
	id   uint64
	name Name
}

var tagCounter uint64

// NewTag mints a fresh, distinct Tag for service type T. name is used only
// for diagnostics (logging, panic messages on missing-service defects).
func NewTag[T any](name Name) Tag[T] {
	tagCounter++
	return Tag[T]{id: tagCounter, name: name}
}

// String returns the tag's diagnostic name.
func (t Tag[T]) String() string { return t.name }

// Context is an immutable, type-indexed service container.
// Adding a service never mutates the receiver; it returns a new Context
// whose map is a fresh copy of the old one's entries.
type Context struct {
	entries map[uint64]any
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{entries: map[uint64]any{}}
}

// ContextGet looks up the service registered under tag. The boolean result
// is false on a miss; callers that require the service (most call sites)
// turn a miss into a Die carrying missingServiceDefect — a missing service
// is a defect, not a typed failure.
func ContextGet[T any](ctx *Context, tag Tag[T]) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	raw, ok := ctx.entries[tag.id]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// ContextAdd returns a new Context with tag bound to value. The receiver is
// left untouched — Context values may be shared freely across fibers.
func ContextAdd[T any](ctx *Context, tag Tag[T], value T) *Context {
	next := &Context{entries: make(map[uint64]any, len(ctx.entries)+1)}
	for k, v := range ctx.entries {
		next.entries[k] = v
	}
	next.entries[tag.id] = value
	return next
}

// ContextMerge returns a new Context containing every entry of base
// overlaid with every entry of override; on key conflict override wins.
// This is the primitive Layer's parallel composition builds on.
func ContextMerge(base, override *Context) *Context {
	next := &Context{entries: make(map[uint64]any, len(base.entries)+len(override.entries))}
	for k, v := range base.entries {
		next.entries[k] = v
	}
	for k, v := range override.entries {
		next.entries[k] = v
	}
	return next
}

// missingServiceDefect is the Defect value carried by the Die produced when
// a Computation looks up a Tag absent from its Context.
type missingServiceDefect struct {
	tag string
}

func (m missingServiceDefect) Error() string {
	return "effectpy: missing service in context: " + m.tag
}
