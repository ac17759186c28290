// Package supervisor implements the SupervisorLoop: a periodic,
// lock-light task that probes each active session's engine health and
// dispatches recovery through the session's own worker rather than
// blocking the scheduler. Structured probe events are emitted through a
// logr.Logger, matching the controller-style consumer pattern the
// teacher's pkg/logger bridges to.
package supervisor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/logger"
)

// Prober is the subset of the scheduler's surface the supervisor needs.
type Prober interface {
	Probe(ctx context.Context, id core.SessionID) error
	SessionIDs() []core.SessionID
}

// Loop periodically snapshots the session list and probes each one.
type Loop struct {
	prober   Prober
	interval time.Duration
}

// New builds a Loop.
func New(prober Prober, interval time.Duration) *Loop {
	return &Loop{prober: prober, interval: interval}
}

// Run blocks until ctx is done, probing every session once per tick.
// Probes for different sessions are dispatched concurrently so one slow
// or hung engine cannot delay the health check of another.
func (l *Loop) Run(ctx context.Context) {
	log := logger.NewLogr().WithName("supervisor")
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx, log)
		}
	}
}

func (l *Loop) tick(ctx context.Context, log interface{ Info(string, ...any) }) {
	ids := l.prober.SessionIDs()
	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := l.prober.Probe(probeCtx, id); err != nil {
				logger.Warnf("supervisor: session %s failed health probe: %v", id, err)
				return nil
			}
			log.Info("probe ok", "session_id", string(id))
			return nil
		})
	}
	_ = g.Wait()
}
