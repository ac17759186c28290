// Package engine defines the EngineBackend contract shared by the
// forward-chaining subprocess backend (clipslite) and the backward-
// chaining in-process backend (mangle). The sentinel-framed REPL protocol
// used by stream-based backends lives in the repl subpackage.
package engine

import (
	"context"
	"time"
)

// CallbackRequest is a tool invocation an engine emits mid-evaluate.
type CallbackRequest struct {
	Tool      string
	Arguments map[string]any
}

// CallbackResponse is written back to the engine before it resumes.
type CallbackResponse struct {
	Status  string // "ok" or "error"
	Result  any
	Message string
}

// CallbackSink resolves a CallbackRequest to a CallbackResponse. It is
// implemented by the toolbox bridge; the engine layer never knows about
// tool registries, only this narrow seam.
type CallbackSink interface {
	Dispatch(ctx context.Context, req CallbackRequest) CallbackResponse
}

// EvalResult is the outcome of one unit of engine input.
type EvalResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	Elapsed    time.Duration
}

// Handle is an opaque reference to one spawned engine instance,
// exclusively owned by the worker that spawned it.
type Handle interface {
	// Broken reports whether the handle has been marked unusable,
	// e.g. after an EngineFault or a forced shutdown.
	Broken() bool
	// MarkBroken flags the handle unusable. Idempotent.
	MarkBroken()
}

// Limits narrows the subset of core.ResourceLimits an engine needs to
// know about at spawn time, without the engine package importing core
// (core declares its own EngineHandle interface; neither package imports
// the other).
type Limits struct {
	MaxRules            int
	MaxFacts            int
	MaxBytes            int64
	HandshakeTimeout    time.Duration
}

// Backend is the polymorphic capability set both engine flavors expose.
// Higher layers (the scheduler, the worker) are backend-agnostic behind
// this interface.
type Backend interface {
	// Spawn produces a ready-to-use handle within the handshake
	// deadline carried in limits, or returns an error.
	Spawn(ctx context.Context, limits Limits) (Handle, error)

	// Evaluate runs one unit of input to completion against handle,
	// routing any mid-evaluate callbacks to sink. It returns within
	// deadline or raises a timeout error.
	Evaluate(ctx context.Context, handle Handle, script string, deadline time.Time, sink CallbackSink) (EvalResult, error)

	// Consult loads rules/clauses without producing user-visible
	// output (the forward backend still runs it through assert/defrule
	// framing; the backward backend loads clauses directly).
	Consult(ctx context.Context, handle Handle, clauses []string, deadline time.Time) (int, error)

	// Query runs a read-only goal against the engine's current state.
	Query(ctx context.Context, handle Handle, goal string, allSolutions bool, deadline time.Time) (QueryResult, error)

	// GracefulShutdown sends a polite exit and drains remaining
	// output within deadline.
	GracefulShutdown(ctx context.Context, handle Handle, deadline time.Time) error

	// ForceShutdown unconditionally terminates the handle. Idempotent.
	ForceShutdown(handle Handle) error

	// HealthProbe performs a cheap liveness check.
	HealthProbe(ctx context.Context, handle Handle) error

	// Stats reports backend-observable resource accounting for usage
	// reporting (objects, approximate resident bytes).
	Stats(handle Handle) Stats
}

// QueryResult is the outcome of a backward-chaining query.
type QueryResult struct {
	Success   bool
	Solutions []map[string]string
}

// Stats is the backend-reported subset of core.ResourceUsage the worker
// folds into the session record after a completed job.
type Stats struct {
	Objects     int
	ApproxBytes int64
}
