package effectpy

import (
	"context"
	"testing"
	"time"
)

func TestDeferred(t *testing.T) {
	t.Run("Await blocks until Succeed, then returns the value", func(t *testing.T) {
		d := NewDeferred[string, int]()
		go func() {
			time.Sleep(10 * time.Millisecond)
			d.Succeed(7)
		}()

		exit, interrupted := d.Await(context.Background())
		if interrupted {
			t.Fatal("unexpected interruption")
		}
		v, ok := exit.Value()
		if !ok || v != 7 {
			t.Fatalf("expected Success(7), got %v", exit)
		}
	})

	t.Run("a second write is rejected", func(t *testing.T) {
		d := NewDeferred[string, int]()
		if !d.Succeed(1) {
			t.Fatal("expected the first write to succeed")
		}
		if d.Succeed(2) {
			t.Fatal("expected the second write to be rejected")
		}
		if d.Fail(NewFail[string]("e")) {
			t.Fatal("expected Fail after Succeed to be rejected")
		}
	})

	t.Run("IsSet reflects completion", func(t *testing.T) {
		d := NewDeferred[string, int]()
		if d.IsSet() {
			t.Fatal("expected an unset Deferred to report IsSet() == false")
		}
		d.Succeed(1)
		if !d.IsSet() {
			t.Fatal("expected IsSet() == true after Succeed")
		}
	})

	t.Run("Await is interrupted by context cancellation outside a fiber", func(t *testing.T) {
		d := NewDeferred[string, int]()
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		_, interrupted := d.Await(ctx)
		if !interrupted {
			t.Fatal("expected Await to report interruption on context cancellation")
		}
	})
}
