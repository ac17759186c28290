// Package eviction implements the EvictionPolicy: LRU + idle-timeout
// selection and the graceful-to-forceful shutdown ladder. It never
// preempts a running job — OldestIdleNotEvaluating already excludes
// Evaluating sessions, so a scope with no eligible candidate simply
// fails admission with Overloaded rather than picking a victim.
package eviction

import (
	"context"
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/logger"
	"github.com/ruleforge/ruleforge/pkg/store"
)

// Terminator is the subset of the scheduler's surface eviction needs:
// terminating a session by id. Kept narrow so eviction never depends on
// the scheduler package directly (the scheduler depends on eviction's
// selection function instead).
type Terminator interface {
	Terminate(ctx context.Context, id core.SessionID) error
}

// Policy selects eviction victims and runs the periodic idle-timeout
// sweep.
type Policy struct {
	store       *store.Store
	idleTimeout time.Duration
}

// New builds a Policy.
func New(st *store.Store, idleTimeout time.Duration) *Policy {
	return &Policy{store: st, idleTimeout: idleTimeout}
}

// SelectForScope picks the oldest-touched, not-currently-Evaluating
// session within scope ("global" or "user:<owner>") to free capacity
// for a new session. It returns (nil, false) if no session qualifies,
// meaning the caller must reject admission instead of evicting.
func (p *Policy) SelectForScope(scope string, owner string) (*core.SessionRecord, bool) {
	match := func(rec *core.SessionRecord) bool {
		if scope == "global" {
			return true
		}
		return rec.Owner == owner
	}
	return p.store.OldestIdleNotEvaluating(match)
}

// SweepIdle terminates every Idle session whose touched-at exceeds the
// idle timeout, via term.
func (p *Policy) SweepIdle(ctx context.Context, term Terminator) {
	cutoff := time.Now().Add(-p.idleTimeout)
	for _, rec := range p.store.IdleLongerThan(cutoff) {
		logger.Infow("evicting idle session", "session_id", string(rec.ID), "owner", rec.Owner)
		if err := term.Terminate(ctx, rec.ID); err != nil {
			logger.Warnf("idle eviction of session %s failed: %v", rec.ID, err)
		}
	}
}

// Run starts a periodic sweep loop that stops when ctx is done.
func (p *Policy) Run(ctx context.Context, interval time.Duration, term Terminator) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.SweepIdle(ctx, term)
		}
	}
}
