package effectpy

import "testing"

func TestContextImmutability(t *testing.T) {
	t.Run("add then get round-trips without mutating the original", func(t *testing.T) {
		tag := NewTag[int]("count")
		base := NewContext()
		next := ContextAdd(base, tag, 42)

		v, ok := ContextGet(next, tag)
		if !ok || v != 42 {
			t.Fatalf("expected ContextGet to return 42,true got %v,%v", v, ok)
		}

		if _, ok := ContextGet(base, tag); ok {
			t.Fatal("expected the original Context to be untouched")
		}
	})

	t.Run("two tags for the same type are distinct keys", func(t *testing.T) {
		tagA := NewTag[int]("a")
		tagB := NewTag[int]("b")
		ctx := ContextAdd(ContextAdd(NewContext(), tagA, 1), tagB, 2)

		va, _ := ContextGet(ctx, tagA)
		vb, _ := ContextGet(ctx, tagB)
		if va != 1 || vb != 2 {
			t.Fatalf("expected distinct values per tag, got a=%d b=%d", va, vb)
		}
	})

	t.Run("ContextMerge: override wins on key conflict", func(t *testing.T) {
		tag := NewTag[string]("service")
		base := ContextAdd(NewContext(), tag, "base")
		override := ContextAdd(NewContext(), tag, "override")

		merged := ContextMerge(base, override)
		v, ok := ContextGet(merged, tag)
		if !ok || v != "override" {
			t.Fatalf("expected override to win, got %v,%v", v, ok)
		}
	})

	t.Run("ContextGet on a missing tag returns zero value and false", func(t *testing.T) {
		tag := NewTag[int]("missing")
		if v, ok := ContextGet(NewContext(), tag); ok || v != 0 {
			t.Fatalf("expected zero,false got %v,%v", v, ok)
		}
	})
}
