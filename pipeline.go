package effectpy

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// Stage is one step of a Pipeline: workers concurrent fibers each receive
// from the stage's inbound channel, apply F, and send to its outbound
// channel of capacity OutCapacity. Workers >= 1.
type Stage[E, T any] struct {
	Name        Name
	F           func(T) Computation[E, T]
	Workers     int
	OutCapacity int
}

// runStage forks Workers goroutines pulling from in and pushing to a fresh
// outbound channel, tracking each worker's fiberState so the pipeline can
// interrupt them as a group. It returns the outbound channel, a WaitGroup
// that completes once every worker has exited, and those workers' states.
func runStage[E, T any](ctx context.Context, env *Context, parentFs *fiberState, index int, s Stage[E, T], in *Channel[T]) (*Channel[T], *sync.WaitGroup, []*fiberState) {
	out := NewChannel[T](s.Name, s.OutCapacity)
	states := make([]*fiberState, s.Workers)
	var wg sync.WaitGroup
	wg.Add(s.Workers)

	capitan.Info(ctx, SignalPipelineStageStarted,
		FieldName.Field(string(s.Name)), FieldStageIndex.Field(index), FieldWorkerCount.Field(s.Workers))

	for i := 0; i < s.Workers; i++ {
		fs := newFiberState(nextFiberID(), parentFs.locals.fork())
		states[i] = fs
		workerCtx := withFiberState(ctx, fs)

		go func() {
			defer wg.Done()
			for {
				recv := in.Receive(workerCtx)
				if recv.IsFailure() {
					return // closed-and-empty, or interrupted: exit cleanly
				}
				v, _ := recv.Value()

				exit := s.F(v).Run(workerCtx, env)
				if exit.IsFailure() {
					cause, _ := exit.Failure()
					capitan.Error(ctx, SignalPipelineStageError,
						FieldName.Field(string(s.Name)), FieldStageIndex.Field(index), FieldError.Field(PrettyRender(cause)))
					if IsDie(cause) || IsInterrupt(cause) {
						return // defect or interruption: stop taking new work
					}
					continue // typed failure: drop this item, keep serving the stage
				}

				result, _ := exit.Value()
				if send := out.Send(workerCtx, result); send.IsFailure() {
					return // downstream closed or this worker interrupted
				}
			}
		}()
	}

	return out, &wg, states
}

// RunPipeline wires an ordered list of stages between in and out,
// constructing the intermediate channels, forking each stage's workers,
// and pumping the final stage's output into out. The
// returned Computation blocks until the source channel closes and every
// forked worker reaches a terminal state — it provides plumbing, not
// shutdown: callers are responsible for closing in when production ends.
// If the pipeline computation itself is interrupted, every worker across
// every stage is interrupted before RunPipeline returns.
func RunPipeline[E, T any](stages []Stage[E, T], in *Channel[T], out *Channel[T]) Computation[E, Unit] {
	return Computation[E, Unit]{run: func(ctx context.Context, env *Context) Exit[E, Unit] {
		fs := currentFiberState(ctx)

		stageChannels := make([]*Channel[T], 0, len(stages)+1)
		stageChannels = append(stageChannels, in)

		var allStates []*fiberState
		var waits []*sync.WaitGroup

		current := in
		for i, s := range stages {
			next, wg, states := runStage(ctx, env, fs, i, s, current)
			allStates = append(allStates, states...)
			waits = append(waits, wg)
			stageChannels = append(stageChannels, next)
			current = next
		}

		// Final pump: forward the last stage's output into the
		// caller-supplied out channel.
		pumpFs := newFiberState(nextFiberID(), fs.locals.fork())
		allStates = append(allStates, pumpFs)
		pumpCtx := withFiberState(ctx, pumpFs)
		pumpDone := make(chan struct{})

		go func() {
			defer close(pumpDone)
			for {
				recv := current.Receive(pumpCtx)
				if recv.IsFailure() {
					return
				}
				v, _ := recv.Value()
				if send := out.Send(pumpCtx, v); send.IsFailure() {
					return
				}
			}
		}()

		// Ripple closure down the chain: once stage i's own workers have
		// all exited, close the channel that feeds stage i+1 (or the
		// pump, for the last stage), so the next consumer observes
		// closed-and-empty in turn.
		closeDone := make(chan struct{})
		go func() {
			defer close(closeDone)
			for i, wg := range waits {
				wg.Wait()
				stageChannels[i+1].Close(ctx)
			}
			<-pumpDone
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			<-closeDone
			out.Close(ctx)
			capitan.Info(ctx, SignalPipelineDrained, FieldWorkerCount.Field(len(allStates)))
		}()

		if interrupted := awaitSuspension(ctx, fs, done); interrupted {
			for _, st := range allStates {
				st.requestInterrupt()
			}
			<-done
			return ExitFail[E, Unit](NewInterrupt[E](fs.id))
		}
		return ExitSucceed[E, Unit](unit)
	}}
}
