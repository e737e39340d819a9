package effectpy

import "sync"

// Ref is a mutable cell supporting atomic reads, updates, and
// compare-and-set. Unlike Deferred it never suspends a reader — it
// always holds a current value.
type Ref[A any] struct {
	mu    sync.Mutex
	value A
}

// NewRef creates a Ref holding the given initial value.
func NewRef[A any](initial A) *Ref[A] {
	return &Ref[A]{value: initial}
}

// Get returns the current value.
func (r *Ref[A]) Get() A {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// Set unconditionally replaces the current value.
func (r *Ref[A]) Set(value A) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = value
}

// Update atomically replaces the current value with f applied to it,
// returning the new value.
func (r *Ref[A]) Update(f func(A) A) A {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.value = f(r.value)
	return r.value
}

// Modify atomically applies f to the current value, storing the returned
// next value and returning the returned result.
func Modify[A, B any](r *Ref[A], f func(A) (B, A)) B {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, next := f(r.value)
	r.value = next
	return result
}

// CompareAndSet replaces the current value with next if and only if the
// current value equals expected (by ==, hence the comparable constraint),
// reporting whether the swap happened.
func CompareAndSet[A comparable](r *Ref[A], expected, next A) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.value != expected {
		return false
	}
	r.value = next
	return true
}
