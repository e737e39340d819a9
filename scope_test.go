package effectpy

import (
	"context"
	"testing"
)

func TestScopeLIFO(t *testing.T) {
	t.Run("finalizers release in strict reverse order", func(t *testing.T) {
		var log []string
		s := NewScope("s3")
		for _, name := range []string{"A", "B", "C"} {
			name := name
			if err := s.AddFinalizer(context.Background(), func(context.Context) error {
				log = append(log, name)
				return nil
			}); err != nil {
				t.Fatalf("AddFinalizer failed: %v", err)
			}
		}

		if err := s.Close(context.Background()); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		want := []string{"C", "B", "A"}
		if len(log) != len(want) {
			t.Fatalf("expected %v, got %v", want, log)
		}
		for i := range want {
			if log[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, log)
			}
		}
	})

	t.Run("Close is idempotent", func(t *testing.T) {
		calls := 0
		s := NewScope("idempotent")
		_ = s.AddFinalizer(context.Background(), func(context.Context) error {
			calls++
			return nil
		})
		_ = s.Close(context.Background())
		_ = s.Close(context.Background())
		if calls != 1 {
			t.Fatalf("expected finalizer to run exactly once, ran %d times", calls)
		}
	})

	t.Run("a finalizer added after close runs immediately", func(t *testing.T) {
		s := NewScope("late")
		_ = s.Close(context.Background())

		ran := false
		if err := s.AddFinalizer(context.Background(), func(context.Context) error {
			ran = true
			return nil
		}); err != nil {
			t.Fatalf("unexpected error from an immediate finalizer: %v", err)
		}
		if !ran {
			t.Fatal("expected the late finalizer to run immediately")
		}
	})

	t.Run("every finalizer runs even when an earlier one fails, errors aggregate", func(t *testing.T) {
		s := NewScope("aggregate")
		secondRan := false
		_ = s.AddFinalizer(context.Background(), func(context.Context) error {
			return errBoom
		})
		_ = s.AddFinalizer(context.Background(), func(context.Context) error {
			secondRan = true
			return nil
		})

		err := s.Close(context.Background())
		if !secondRan {
			t.Fatal("expected every finalizer to run regardless of an earlier failure")
		}
		if err == nil {
			t.Fatal("expected Close to surface the finalizer failure")
		}
	})

	t.Run("a panicking finalizer is recovered, siblings still run", func(t *testing.T) {
		s := NewScope("panic")
		siblingRan := false
		_ = s.AddFinalizer(context.Background(), func(context.Context) error {
			panic("boom")
		})
		_ = s.AddFinalizer(context.Background(), func(context.Context) error {
			siblingRan = true
			return nil
		})

		err := s.Close(context.Background())
		if !siblingRan {
			t.Fatal("expected the sibling finalizer to still run after a panic")
		}
		if err == nil {
			t.Fatal("expected Close to report the recovered panic as a failure")
		}
	})

	t.Run("OnFinalizerFailure diagnostics hook fires without affecting Close's own error", func(t *testing.T) {
		s := NewScope("diag")
		var seen ScopeFinalizerFailure
		_ = s.OnFinalizerFailure(func(_ context.Context, f ScopeFinalizerFailure) error {
			seen = f
			return nil
		})
		_ = s.AddFinalizer(context.Background(), func(context.Context) error { return errBoom })

		err := s.Close(context.Background())
		if err == nil {
			t.Fatal("expected a failure")
		}
		if seen.Err != errBoom {
			t.Fatalf("expected the hook to observe errBoom, got %v", seen.Err)
		}
	})
}

var errBoom = scopeTestError("boom")

type scopeTestError string

func (e scopeTestError) Error() string { return string(e) }
