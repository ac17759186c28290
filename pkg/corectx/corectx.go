// Package corectx assembles the explicit CoreContext value the design
// notes call for: every component the session/engine runtime needs is
// constructed here and passed down, rather than reached through package-
// level singletons. Process-wide state exists only as the fields of
// this struct.
package corectx

import (
	"context"
	"time"

	"github.com/ruleforge/ruleforge/pkg/config"
	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/engine/clipslite"
	"github.com/ruleforge/ruleforge/pkg/engine/mangle"
	"github.com/ruleforge/ruleforge/pkg/eviction"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
	"github.com/ruleforge/ruleforge/pkg/scheduler"
	"github.com/ruleforge/ruleforge/pkg/store"
	"github.com/ruleforge/ruleforge/pkg/supervisor"
	"github.com/ruleforge/ruleforge/pkg/toolbox"
)

// CoreContext is the root of the dependency graph: one instance is built
// at process startup and threaded into the HTTP adapter, the stdio
// adapter, and the CLI's in-process test harness.
type CoreContext struct {
	Config      *config.Config
	Store       *store.Store
	Checkpoints *store.CheckpointStore
	Bridge      *toolbox.Bridge
	Scheduler   *scheduler.Scheduler
	Eviction    *eviction.Policy
	Supervisor  *supervisor.Loop

	cancel context.CancelFunc
}

// Build wires every component from cfg. Callers own the returned
// CoreContext's lifetime and must call Shutdown when done.
func Build(cfg *config.Config) *CoreContext {
	st := store.New()
	bridge := toolbox.NewBridge()

	sched := scheduler.New(
		st,
		bridge,
		cfg.MaxConcurrentSessions,
		cfg.MaxSessionsPerUser,
		cfg.GlobalInFlightCap,
		scheduler.WithBackend(core.SessionTypeForward, clipslite.New(cfg.ClipsliteBinaryPath)),
		scheduler.WithBackend(core.SessionTypeBackward, mangle.New()),
	)

	policy := eviction.New(st, cfg.IdleTimeout)
	loop := supervisor.New(sched, cfg.SupervisorInterval)

	cc := &CoreContext{
		Config:      cfg,
		Store:       st,
		Checkpoints: store.NewCheckpointStore(),
		Bridge:      bridge,
		Scheduler:   sched,
		Eviction:    policy,
		Supervisor:  loop,
	}
	return cc
}

// SaveCheckpoint persists the metadata-only /save sidecar for id: a
// caller-supplied label and metadata blob alongside the session's
// resource usage at the time of the call. It never serializes engine
// state, per the core spec's explicit /save semantics.
func (cc *CoreContext) SaveCheckpoint(id core.SessionID, label string, metadata map[string]any) error {
	rec, ok := cc.Store.Get(id)
	if !ok {
		return rferrors.NewNotFound("no such session", nil)
	}
	return cc.Checkpoints.Save(id, store.Checkpoint{
		Label:     label,
		Metadata:  metadata,
		Resources: rec.Usage,
		SavedAt:   time.Now(),
	})
}

// RegisterTool adds a host-side tool to the shared toolbox bridge before
// the first session is created.
func (cc *CoreContext) RegisterTool(t toolbox.Tool) {
	cc.Bridge.Register(t)
}

// Limits builds a fresh core.ResourceLimits from the configured defaults.
func (cc *CoreContext) Limits() core.ResourceLimits {
	limits := core.DefaultResourceLimits()
	limits.DefaultEvalDeadline = cc.Config.DefaultEvalTimeout
	limits.AbsoluteEvalCeiling = cc.Config.AbsoluteEvalCeiling
	return limits
}

// Run starts the eviction sweep and supervisor loops, blocking until ctx
// is cancelled.
func (cc *CoreContext) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	cc.cancel = cancel

	go cc.Eviction.Run(runCtx, cc.Config.EvictionSweepEvery, terminatorFunc(cc.Scheduler.Terminate))
	cc.Supervisor.Run(runCtx)
}

// Shutdown stops the background loops and the scheduler's workers.
func (cc *CoreContext) Shutdown() {
	if cc.cancel != nil {
		cc.cancel()
	}
	cc.Scheduler.Close()
}

type terminatorFunc func(ctx context.Context, id core.SessionID) error

func (f terminatorFunc) Terminate(ctx context.Context, id core.SessionID) error {
	return f(ctx, id)
}

// EvictionPicker adapts the eviction policy to the scheduler's
// over-capacity callback signature, binding the requesting owner for
// per-user scopes.
func (cc *CoreContext) EvictionPicker(owner string) func(scope string) (*core.SessionRecord, bool) {
	return func(scope string) (*core.SessionRecord, bool) {
		return cc.Eviction.SelectForScope(scope, owner)
	}
}

var _ engine.Backend = (*clipslite.Backend)(nil)
var _ engine.Backend = (*mangle.Backend)(nil)
