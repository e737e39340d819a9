package effectpy

import (
	"context"
	"testing"
	"time"
)

func TestRunPipeline(t *testing.T) {
	ctx := context.Background()
	env := NewContext()

	t.Run("each stage transforms items end to end, in order", func(t *testing.T) {
		in := NewChannel[int]("in", 4)
		out := NewChannel[int]("out", 4)

		stages := []Stage[string, int]{
			{Name: "double", F: func(x int) Computation[string, int] { return Succeed[string, int](x * 2) }, Workers: 1, OutCapacity: 4},
			{Name: "increment", F: func(x int) Computation[string, int] { return Succeed[string, int](x + 1) }, Workers: 1, OutCapacity: 4},
		}

		rt := NewRuntime(nil)
		fiber := Fork(rt, ctx, RunPipeline(stages, in, out))

		for _, v := range []int{1, 2, 3} {
			in.Send(ctx, v)
		}
		in.Close(ctx)

		var got []int
		for i := 0; i < 3; i++ {
			exit := out.Receive(ctx)
			v, ok := exit.Value()
			if !ok {
				t.Fatalf("expected %d outputs, got %d", 3, i)
			}
			got = append(got, v)
		}

		want := map[int]bool{3: true, 5: true, 7: true} // (1*2)+1, (2*2)+1, (3*2)+1
		for _, v := range got {
			if !want[v] {
				t.Fatalf("unexpected output value %d, want one of %v", v, want)
			}
		}

		exit := fiber.Await(ctx)
		if !exit.IsSuccess() {
			t.Fatalf("expected the pipeline computation to complete successfully, got %v", exit)
		}
		if !out.IsClosed() {
			t.Fatal("expected out to be closed once the pipeline drains")
		}
	})

	t.Run("a typed failure from a stage drops the item but keeps the worker serving", func(t *testing.T) {
		in := NewChannel[int]("in", 4)
		out := NewChannel[int]("out", 4)

		stages := []Stage[string, int]{
			{Name: "reject-even", F: func(x int) Computation[string, int] {
				if x%2 == 0 {
					return Fail[string, int]("even rejected")
				}
				return Succeed[string, int](x)
			}, Workers: 1, OutCapacity: 4},
		}

		rt := NewRuntime(nil)
		fiber := Fork(rt, ctx, RunPipeline(stages, in, out))

		for _, v := range []int{1, 2, 3} {
			in.Send(ctx, v)
		}
		in.Close(ctx)

		var got []int
		for i := 0; i < 2; i++ {
			exit := out.Receive(ctx)
			v, ok := exit.Value()
			if !ok {
				t.Fatalf("expected 2 surviving outputs, got %d", i)
			}
			got = append(got, v)
		}
		if len(got) != 2 || got[0] != 1 || got[1] != 3 {
			t.Fatalf("expected [1,3], got %v", got)
		}

		fiber.Await(ctx)
	})

	t.Run("interrupting the pipeline fiber interrupts every stage's workers", func(t *testing.T) {
		in := NewChannel[int]("in", 1)
		out := NewChannel[int]("out", 1)

		blockedStage := Stage[string, int]{
			Name: "block", Workers: 2, OutCapacity: 1,
			F: func(x int) Computation[string, int] {
				return Computation[string, int]{run: func(ctx context.Context, env *Context) Exit[string, int] {
					fs := currentFiberState(ctx)
					done := make(chan struct{})
					if interrupted := awaitSuspension(ctx, fs, done); interrupted {
						return ExitFail[string, int](NewInterrupt[string](fs.id))
					}
					return ExitSucceed[string, int](x)
				}}
			},
		}

		rt := NewRuntime(nil)
		fiber := Fork(rt, ctx, RunPipeline([]Stage[string, int]{blockedStage}, in, out))
		in.Send(ctx, 1)
		time.Sleep(20 * time.Millisecond)

		exit := fiber.Interrupt(ctx)
		if exit.IsSuccess() {
			t.Fatal("expected the pipeline fiber to report interruption")
		}
		cause, _ := exit.Failure()
		if !IsInterrupt(cause) {
			t.Fatalf("expected an Interrupt cause, got %v", exit)
		}
	})
}
