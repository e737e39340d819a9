package effectpy

import (
	"context"
	"errors"
	"testing"
)

type dbConn struct{ closed bool }

func TestServiceLayerAndProvideScoped(t *testing.T) {
	ctx := context.Background()

	t.Run("ProvideScoped builds the service, runs use, then tears it down", func(t *testing.T) {
		conn := &dbConn{}
		tag := NewTag[*dbConn]("db")
		layer := ServiceLayer[string](
			"db",
			tag,
			func(ctx context.Context) (*dbConn, Cause[string]) { return conn, nil },
			func(ctx context.Context, c *dbConn) error { c.closed = true; return nil },
		)

		m := ProvideScoped(ctx, layer, NewContext(), func(env *Context) Computation[string, bool] {
			return Computation[string, bool]{run: func(ctx context.Context, env *Context) Exit[string, bool] {
				v, ok := ContextGet(env, tag)
				return ExitSucceed[string, bool](ok && v == conn && !v.closed)
			}}
		})

		exit := m.Run(ctx, NewContext())
		v, _ := exit.Value()
		if !v {
			t.Fatal("expected the service to be reachable and not yet closed while use runs")
		}
		if !conn.closed {
			t.Fatal("expected the service to be released once the scoped block exits")
		}
	})

	t.Run("a failing acquire never schedules a release and fails the whole Computation", func(t *testing.T) {
		tag := NewTag[*dbConn]("db")
		var released bool
		layer := ServiceLayer[string](
			"db",
			tag,
			func(ctx context.Context) (*dbConn, Cause[string]) { return nil, NewFail[string]("connect failed") },
			func(ctx context.Context, c *dbConn) error { released = true; return nil },
		)

		m := ProvideScoped(ctx, layer, NewContext(), func(env *Context) Computation[string, int] {
			return Succeed[string, int](1)
		})
		exit := m.Run(ctx, NewContext())
		if !exit.IsFailure() {
			t.Fatal("expected a failing acquire to fail the whole computation")
		}
		if released {
			t.Fatal("expected no release to run when acquire never succeeded")
		}
	})
}

func TestThenLayer(t *testing.T) {
	t.Run("right's build sees left's outputs in its base Context", func(t *testing.T) {
		aTag := NewTag[int]("a")
		bTag := NewTag[string]("b")

		left := ServiceLayer[string](
			"a", aTag,
			func(ctx context.Context) (int, Cause[string]) { return 1, nil },
			nil,
		)
		right := NewLayer[string]("b", func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[string]) {
			a, ok := ContextGet(base, aTag)
			if !ok {
				return nil, NewDie[string](errors.New("left's output missing from right's base"))
			}
			return ContextAdd(base, bTag, "derived-from-"+string(rune('0'+a))), nil
		})

		combined := ThenLayer(left, right)
		scope := NewScope("test")
		result, cause := BuildScoped(context.Background(), combined, NewContext(), scope)
		if cause != nil {
			t.Fatalf("unexpected build failure: %v", cause)
		}
		if _, ok := ContextGet(result, aTag); !ok {
			t.Fatal("expected left's service to still be present in the merged result")
		}
		if _, ok := ContextGet(result, bTag); !ok {
			t.Fatal("expected right's service to be present in the merged result")
		}
	})
}

func TestParallelLayer(t *testing.T) {
	t.Run("right wins on key conflict", func(t *testing.T) {
		tag := NewTag[string]("shared")
		left := ServiceLayer[string]("left", tag, func(ctx context.Context) (string, Cause[string]) { return "left", nil }, nil)
		right := ServiceLayer[string]("right", tag, func(ctx context.Context) (string, Cause[string]) { return "right", nil }, nil)

		combined := ParallelLayer(left, right)
		scope := NewScope("test")
		result, cause := BuildScoped(context.Background(), combined, NewContext(), scope)
		if cause != nil {
			t.Fatalf("unexpected build failure: %v", cause)
		}
		v, _ := ContextGet(result, tag)
		if v != "right" {
			t.Fatalf("expected right's value to win the conflict, got %q", v)
		}
	})

	t.Run("both failing combines into a single BothCause", func(t *testing.T) {
		left := NewLayer[string]("left", func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[string]) {
			return nil, NewFail[string]("left failed")
		})
		right := NewLayer[string]("right", func(ctx context.Context, base *Context, scope *Scope) (*Context, Cause[string]) {
			return nil, NewFail[string]("right failed")
		})

		combined := ParallelLayer(left, right)
		scope := NewScope("test")
		_, cause := BuildScoped(context.Background(), combined, NewContext(), scope)
		if _, ok := cause.(BothCause[string]); !ok {
			t.Fatalf("expected a BothCause, got %T", cause)
		}
	})
}

func TestProvide(t *testing.T) {
	t.Run("Provide builds against the scope already installed in env", func(t *testing.T) {
		rt := NewRuntime(nil)
		tag := NewTag[string]("svc")
		layer := ServiceLayer[string]("svc", tag, func(ctx context.Context) (string, Cause[string]) { return "ready", nil }, nil)

		m := Computation[string, string]{run: func(ctx context.Context, env *Context) Exit[string, string] {
			return Provide(ctx, layer, env, func(merged *Context) Computation[string, string] {
				return Computation[string, string]{run: func(ctx context.Context, env *Context) Exit[string, string] {
					v, _ := ContextGet(env, tag)
					return ExitSucceed[string, string](v)
				}}
			}).Run(ctx, env)
		}}

		exit := Run(rt, context.Background(), m)
		v, _ := exit.Value()
		if v != "ready" {
			t.Fatalf("expected ready, got %q", v)
		}
	})

	t.Run("Provide dies when no scope is installed in env", func(t *testing.T) {
		tag := NewTag[string]("svc")
		layer := ServiceLayer[string]("svc", tag, func(ctx context.Context) (string, Cause[string]) { return "x", nil }, nil)
		m := Provide(context.Background(), layer, NewContext(), func(env *Context) Computation[string, int] {
			return Succeed[string, int](1)
		})
		cause, _ := m.Run(context.Background(), NewContext()).Failure()
		if !IsDie(cause) {
			t.Fatal("expected a missing scope to manifest as a Die")
		}
	})
}
