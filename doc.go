// Package effectpy provides a structured-concurrency runtime for Go, in the
// Effect/ZIO tradition.
//
// # Overview
//
// effectpy models an asynchronous unit of work as a lazy value — a
// Computation[E, A] — rather than as a goroutine started eagerly on
// construction. Building a Computation has no side effects; running it
// against a Runtime and a Context does. Every Computation carries three
// distinct failure channels: a typed, recoverable error (E), an unexpected
// defect (a bug), and cooperative interruption, all unified by the Cause[E]
// algebra.
//
// # Core Concepts
//
//   - Computation[E, A]: a lazy, composable description of an asynchronous
//     calculation that may fail with E and, on success, produces A.
//   - Cause[E]: the tree describing why a computation ended abnormally.
//   - Exit[E, A]: the tagged outcome of running a Computation to completion.
//   - Context: an immutable, type-indexed service container a Computation
//     reads its environment from. A service missing from the Context is a
//     defect, not a typed failure — effectpy resolves service lookups at
//     run time via Context rather than threading an environment type
//     parameter through every combinator; see DESIGN.md.
//   - Scope: a LIFO registry of finalizers, guaranteeing resource release.
//   - Fiber / Runtime: forkable units of work with identity, join, and
//     cooperative interruption.
//   - Layer: a composable, scoped builder of service environments.
//   - Schedule: a decision automaton driving retry and repeat.
//   - Channel / Pipeline: a backpressured queue and the multi-stage worker
//     pipeline built on top of it.
//
// Because a Go method cannot introduce type parameters beyond its
// receiver's, every combinator that changes the value type (Map, FlatMap,
// Zip, Fold, ...) is a package-level generic function rather than a method,
// following the same free-function-adapter shape pipz uses for Transform,
// Apply, and Effect. Combinators that preserve E and A (Ensuring, OnError,
// Annotate, Uninterruptible) are also exposed as methods for fluent
// chaining.
//
// # Observability
//
// Every long-running or stateful component is wired to the same
// observability triad used throughout: github.com/zoobzio/clockz for
// virtual time, github.com/zoobzio/metricz for counters and gauges,
// github.com/zoobzio/tracez for spans, github.com/zoobzio/hookz for
// supervisor event hooks, and github.com/zoobzio/capitan for structured
// signal emission.
//
// # Usage Example
//
//	rt := effectpy.NewRuntime(effectpy.NewContext())
//
//	computation := effectpy.FlatMap(
//	    effectpy.Succeed[string](10),
//	    func(n int) effectpy.Computation[string, int] {
//	        return effectpy.Succeed[string](n * 2)
//	    },
//	)
//
//	exit := effectpy.Run(rt, context.Background(), computation)
package effectpy
