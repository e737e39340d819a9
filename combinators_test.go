package effectpy

import (
	"context"
	"errors"
	"testing"
)

func TestCombinatorsMonadLaws(t *testing.T) {
	ctx := context.Background()
	env := NewContext()

	t.Run("left identity: Succeed(a).flat_map(k) == k(a)", func(t *testing.T) {
		k := func(x int) Computation[string, int] { return Succeed[string, int](x * 2) }
		left := FlatMap(Succeed[string, int](21), k)
		right := k(21)

		lv, _ := left.Run(ctx, env).Value()
		rv, _ := right.Run(ctx, env).Value()
		if lv != rv || lv != 42 {
			t.Fatalf("expected both sides to equal 42, got left=%d right=%d", lv, rv)
		}
	})

	t.Run("right identity: m.flat_map(Succeed) == m", func(t *testing.T) {
		m := Succeed[string, int](7)
		wrapped := FlatMap(m, func(x int) Computation[string, int] { return Succeed[string, int](x) })

		mv, _ := m.Run(ctx, env).Value()
		wv, _ := wrapped.Run(ctx, env).Value()
		if mv != wv {
			t.Fatalf("expected %d == %d", mv, wv)
		}
	})

	t.Run("associativity of flat_map chains", func(t *testing.T) {
		m := Succeed[string, int](1)
		f := func(x int) Computation[string, int] { return Succeed[string, int](x + 1) }
		g := func(x int) Computation[string, int] { return Succeed[string, int](x * 10) }

		left := FlatMap(FlatMap(m, f), g)
		right := FlatMap(m, func(x int) Computation[string, int] { return FlatMap(f(x), g) })

		lv, _ := left.Run(ctx, env).Value()
		rv, _ := right.Run(ctx, env).Value()
		if lv != rv || lv != 20 {
			t.Fatalf("expected both sides to equal 20, got left=%d right=%d", lv, rv)
		}
	})
}

func TestCombinators(t *testing.T) {
	ctx := context.Background()
	env := NewContext()

	t.Run("Map transforms success, leaves failure alone", func(t *testing.T) {
		ok := Map(Succeed[string, int](3), func(x int) string { return "n=3" })
		v, _ := ok.Run(ctx, env).Value()
		if v != "n=3" {
			t.Fatalf("expected n=3, got %q", v)
		}

		failed := Map(Fail[string, int]("boom"), func(x int) string { return "unreached" })
		exit := failed.Run(ctx, env)
		if !exit.IsFailure() {
			t.Fatal("expected Map to pass a failure through untouched")
		}
	})

	t.Run("MapError rewrites the typed failure channel only", func(t *testing.T) {
		m := MapError(Fail[string, int]("boom"), func(e string) int { return len(e) })
		cause, _ := m.Run(ctx, env).Failure()
		errVal, _, _, _, _ := Squash(cause)
		if errVal != 4 {
			t.Fatalf("expected len(\"boom\")=4, got %d", errVal)
		}
	})

	t.Run("Zip runs both and pairs their results", func(t *testing.T) {
		z := Zip(Succeed[string, int](1), Succeed[string, string]("a"))
		v, _ := z.Run(ctx, env).Value()
		if v.First != 1 || v.Second != "a" {
			t.Fatalf("expected Pair{1,a}, got %+v", v)
		}
	})

	t.Run("ZipWith combines results through g", func(t *testing.T) {
		z := ZipWith(Succeed[string, int](2), Succeed[string, int](3), func(a, b int) int { return a * b })
		v, _ := z.Run(ctx, env).Value()
		if v != 6 {
			t.Fatalf("expected 6, got %d", v)
		}
	})

	t.Run("CatchAll recovers a typed failure, never intercepts Die", func(t *testing.T) {
		recovered := CatchAll(Fail[string, int]("boom"), func(e string) Computation[string, int] {
			return Succeed[string, int](-1)
		})
		v, _ := recovered.Run(ctx, env).Value()
		if v != -1 {
			t.Fatalf("expected recovered value -1, got %d", v)
		}

		died := CatchAll(Die[string, int](errors.New("fatal")), func(e string) Computation[string, int] {
			t.Fatal("CatchAll must never intercept a Die")
			return Succeed[string, int](0)
		})
		exit := died.Run(ctx, env)
		cause, _ := exit.Failure()
		if !IsDie(cause) {
			t.Fatal("expected the Die to propagate untouched")
		}
	})

	t.Run("Fold totally handles success and typed failure", func(t *testing.T) {
		onOk := Fold(Succeed[string, int](5), func(e string) string { return "err:" + e }, func(a int) string { return "ok" })
		v, _ := onOk.Run(ctx, env).Value()
		if v != "ok" {
			t.Fatalf("expected ok, got %q", v)
		}

		onErr := Fold(Fail[string, int]("boom"), func(e string) string { return "err:" + e }, func(a int) string { return "ok" })
		v2, _ := onErr.Run(ctx, env).Value()
		if v2 != "err:boom" {
			t.Fatalf("expected err:boom, got %q", v2)
		}
	})

	t.Run("FoldEffect lets onCause distinguish Fail from Die", func(t *testing.T) {
		m := FoldEffect(Die[string, int](errors.New("fatal")),
			func(cause Cause[string]) Computation[string, string] {
				if IsDie(cause) {
					return Succeed[string, string]("recovered-die")
				}
				return Succeed[string, string]("recovered-other")
			},
			func(a int) Computation[string, string] { return Succeed[string, string]("ok") },
		)
		v, _ := m.Run(ctx, env).Value()
		if v != "recovered-die" {
			t.Fatalf("expected recovered-die, got %q", v)
		}
	})

	t.Run("RefineOrDie passes through the accepted subset, dies on the rest", func(t *testing.T) {
		refine := func(e string) (int, bool) {
			if e == "known" {
				return 1, true
			}
			return 0, false
		}

		accepted := RefineOrDie(Fail[string, int]("known"), refine)
		cause, _ := accepted.Run(ctx, env).Failure()
		if !IsFail(cause) {
			t.Fatal("expected the accepted error to remain a typed Fail")
		}

		rejected := RefineOrDie(Fail[string, int]("unknown"), refine)
		cause2, _ := rejected.Run(ctx, env).Failure()
		if !IsDie(cause2) {
			t.Fatal("expected the rejected error to become a Die")
		}
	})

	t.Run("AcquireRelease registers release on the enclosing scope", func(t *testing.T) {
		scope := NewScope("test")
		envWithScope := ContextAdd(env, scopeTag, scope)

		var released bool
		m := AcquireRelease(Succeed[string, int](99), func(ctx context.Context, env *Context, a int) error {
			released = a == 99
			return nil
		})

		exit := m.Run(ctx, envWithScope)
		if v, _ := exit.Value(); v != 99 {
			t.Fatalf("expected acquired value 99, got %d", v)
		}
		if released {
			t.Fatal("release must not run before the scope is closed")
		}
		if err := scope.Close(ctx); err != nil {
			t.Fatalf("unexpected finalizer error: %v", err)
		}
		if !released {
			t.Fatal("expected release to run on scope Close")
		}
	})

	t.Run("AcquireRelease dies when no scope is installed", func(t *testing.T) {
		m := AcquireRelease(Succeed[string, int](1), func(ctx context.Context, env *Context, a int) error { return nil })
		exit := m.Run(ctx, env)
		cause, _ := exit.Failure()
		if !IsDie(cause) {
			t.Fatal("expected a missing scope to manifest as a Die")
		}
	})
}
