package effectpy

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ZipPar runs left and right concurrently, waiting for both. If either
// fails, the other is interrupted and the combined Exit carries both
// causes via BothCauses when both fail, or the single failure otherwise.
func ZipPar[E, A, B any](left Computation[E, A], right Computation[E, B]) Computation[E, Pair[A, B]] {
	return Computation[E, Pair[A, B]]{run: func(ctx context.Context, env *Context) Exit[E, Pair[A, B]] {
		parentFs := currentFiberState(ctx)
		leftFs := newFiberState(nextFiberID(), parentFs.locals.fork())
		rightFs := newFiberState(nextFiberID(), parentFs.locals.fork())

		leftCtx := withFiberState(ctx, leftFs)
		rightCtx := withFiberState(ctx, rightFs)

		leftCh := make(chan Exit[E, A], 1)
		rightCh := make(chan Exit[E, B], 1)

		go func() { leftCh <- left.Run(leftCtx, env) }()
		go func() { rightCh <- right.Run(rightCtx, env) }()

		var leftExit Exit[E, A]
		var rightExit Exit[E, B]
		for received := 0; received < 2; received++ {
			select {
			case leftExit = <-leftCh:
				if leftExit.IsFailure() {
					rightFs.requestInterrupt()
				}
			case rightExit = <-rightCh:
				if rightExit.IsFailure() {
					leftFs.requestInterrupt()
				}
			}
		}

		if leftExit.IsFailure() || rightExit.IsFailure() {
			leftFs.requestInterrupt()
			rightFs.requestInterrupt()
			switch {
			case leftExit.IsFailure() && rightExit.IsFailure():
				lc, _ := leftExit.Failure()
				rc, _ := rightExit.Failure()
				return ExitFail[E, Pair[A, B]](BothCauses(lc, rc))
			case leftExit.IsFailure():
				lc, _ := leftExit.Failure()
				return ExitFail[E, Pair[A, B]](lc)
			default:
				rc, _ := rightExit.Failure()
				return ExitFail[E, Pair[A, B]](rc)
			}
		}

		lv, _ := leftExit.Value()
		rv, _ := rightExit.Value()
		return ExitSucceed[E, Pair[A, B]](Pair[A, B]{First: lv, Second: rv})
	}}
}

// RacePair runs a and b concurrently. Whichever completes first wins if it
// succeeds, interrupting the other. If the first completion is a failure,
// RacePair keeps waiting for the other: a second success wins outright, and
// if both fail the two causes combine via BothCauses. This is the binary
// race(a, b) of the data model; Race/RaceFirst/RaceAll below are its
// list-input cousin, race_first, which never waits past the first
// completion regardless of outcome.
func RacePair[E, A any](a, b Computation[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		parentFs := currentFiberState(ctx)
		aFs := newFiberState(nextFiberID(), parentFs.locals.fork())
		bFs := newFiberState(nextFiberID(), parentFs.locals.fork())
		aCtx := withFiberState(ctx, aFs)
		bCtx := withFiberState(ctx, bFs)

		aCh := make(chan Exit[E, A], 1)
		bCh := make(chan Exit[E, A], 1)
		go func() { aCh <- a.Run(aCtx, env) }()
		go func() { bCh <- b.Run(bCtx, env) }()

		var first, second Exit[E, A]
		var secondCh chan Exit[E, A]
		var secondFs *fiberState
		select {
		case first = <-aCh:
			secondCh, secondFs = bCh, bFs
		case first = <-bCh:
			secondCh, secondFs = aCh, aFs
		}

		if first.IsSuccess() {
			secondFs.requestInterrupt()
			return first
		}

		second = <-secondCh
		if second.IsSuccess() {
			return second
		}

		firstCause, _ := first.Failure()
		secondCause, _ := second.Failure()
		return ExitFail[E, A](BothCauses(firstCause, secondCause))
	}}
}

// Race runs all of xs concurrently and returns the first to complete
// (success or failure), interrupting the rest — race_first over a list.
// An empty xs is a programmer error (Die), as there is no "first" of
// nothing.
func Race[E, A any](xs []Computation[E, A]) Computation[E, A] {
	return Computation[E, A]{run: func(ctx context.Context, env *Context) Exit[E, A] {
		if len(xs) == 0 {
			return ExitFail[E, A](NewDie[E]("Race: empty input"))
		}
		parentFs := currentFiberState(ctx)
		resultCh := make(chan Exit[E, A], len(xs))
		states := make([]*fiberState, len(xs))

		for i, m := range xs {
			fs := newFiberState(nextFiberID(), parentFs.locals.fork())
			states[i] = fs
			runCtx := withFiberState(ctx, fs)
			go func(m Computation[E, A]) {
				resultCh <- m.Run(runCtx, env)
			}(m)
		}

		first := <-resultCh
		for _, fs := range states {
			fs.requestInterrupt()
		}
		return first
	}}
}

// RaceFirst is an alias of Race: the list form of race_first, returning
// the first completion regardless of success or failure.
func RaceFirst[E, A any](xs []Computation[E, A]) Computation[E, A] {
	return Race(xs)
}

// RaceAll is a synonym for RaceFirst with list input, per the data model.
// It does not wait for a success the way RacePair does — the first
// completion of any kind wins and the rest are interrupted.
func RaceAll[E, A any](xs []Computation[E, A]) Computation[E, A] {
	return RaceFirst(xs)
}

// ForEachPar evaluates f over every element of xs concurrently, bounded by
// parallelism concurrent slots, cancelling the rest on first failure.
// parallelism <= 0 is a programmer error (Die); a value >= len(xs)
// behaves as unbounded. Built on golang.org/x/sync/errgroup and
// golang.org/x/sync/semaphore.
func ForEachPar[E, In, Out any](xs []In, parallelism int, f func(In) Computation[E, Out]) Computation[E, []Out] {
	return Computation[E, []Out]{run: func(ctx context.Context, env *Context) Exit[E, []Out] {
		if parallelism <= 0 {
			return ExitFail[E, []Out](NewDie[E]("ForEachPar: parallelism must be > 0"))
		}
		parentFs := currentFiberState(ctx)
		results := make([]Out, len(xs))
		childStates := make([]*fiberState, len(xs))

		sem := semaphore.NewWeighted(int64(parallelism))
		group, gctx := errgroup.WithContext(ctx)

		for i, in := range xs {
			i, in := i, in
			group.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				fs := newFiberState(nextFiberID(), parentFs.locals.fork())
				childStates[i] = fs
				runCtx := withFiberState(gctx, fs)

				exit := f(in).Run(runCtx, env)
				if exit.IsFailure() {
					cause, _ := exit.Failure()
					return NewCauseError(cause)
				}
				v, _ := exit.Value()
				results[i] = v
				return nil
			})
		}

		err := group.Wait()
		if err != nil {
			for _, fs := range childStates {
				if fs != nil {
					fs.requestInterrupt()
				}
			}
			if ce, ok := err.(*CauseError[E]); ok {
				return ExitFail[E, []Out](ce.Cause)
			}
			return ExitFail[E, []Out](NewDie[E](err))
		}
		return ExitSucceed[E, []Out](results)
	}}
}

// MergeAll evaluates every computation in xs concurrently, bounded by
// parallelism, and combines their successes left-to-right with combine
// starting from zero — the parallel analogue of a fold, cancelling the
// rest on first failure. An empty xs is a programmer error (Die), the
// same as an empty Race: there is no "merge" of nothing.
func MergeAll[E, A, Z any](xs []Computation[E, A], parallelism int, zero Z, combine func(Z, A) Z) Computation[E, Z] {
	return Computation[E, Z]{run: func(ctx context.Context, env *Context) Exit[E, Z] {
		if len(xs) == 0 {
			return ExitFail[E, Z](NewDie[E]("MergeAll: empty input"))
		}
		if parallelism <= 0 {
			return ExitFail[E, Z](NewDie[E]("MergeAll: parallelism must be > 0"))
		}

		gathered := ForEachPar(xs, parallelism, func(m Computation[E, A]) Computation[E, A] { return m })
		exit := gathered.Run(ctx, env)
		if exit.IsFailure() {
			cause, _ := exit.Failure()
			return ExitFail[E, Z](cause)
		}
		values, _ := exit.Value()
		acc := zero
		for _, v := range values {
			acc = combine(acc, v)
		}
		return ExitSucceed[E, Z](acc)
	}}
}
