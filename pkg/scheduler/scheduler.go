// Package scheduler is the heart of the core: admission control,
// per-session FIFO serialization, deadline enforcement, cancellation,
// and fault recovery. Grounded on the teacher's errgroup-based worker
// patterns (pkg/workloads) generalized from container lifecycle
// operations to engine evaluate/consult/query jobs, and on
// golang.org/x/time/rate for the global admission limiter.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/engine"
	"github.com/ruleforge/ruleforge/pkg/metrics"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
	"github.com/ruleforge/ruleforge/pkg/store"
)

// Scheduler is the admission+execution core described by pkg/core's
// SessionRecord/ScheduledJob types. One Scheduler instance is shared by
// the forward and backward surfaces; SessionType selects which backend
// a given session's worker drives.
type Scheduler struct {
	mu       sync.Mutex
	store    *store.Store
	backends map[core.SessionType]engine.Backend
	bridge   engine.CallbackSink
	workers  map[core.SessionID]*worker

	maxConcurrentSessions int
	maxSessionsPerUser    int
	globalSem             chan struct{}
	limiter               *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithBackend registers the backend implementation for a session type.
func WithBackend(typ core.SessionType, backend engine.Backend) Option {
	return func(s *Scheduler) { s.backends[typ] = backend }
}

// New builds a Scheduler bound to store, with admission caps taken from
// maxConcurrentSessions/maxSessionsPerUser/globalInFlightCap.
func New(st *store.Store, bridge engine.CallbackSink, maxConcurrentSessions, maxSessionsPerUser, globalInFlightCap int, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:                 st,
		backends:              make(map[core.SessionType]engine.Backend),
		bridge:                bridge,
		workers:               make(map[core.SessionID]*worker),
		maxConcurrentSessions: maxConcurrentSessions,
		maxSessionsPerUser:    maxSessionsPerUser,
		globalSem:             make(chan struct{}, globalInFlightCap),
		limiter:               rate.NewLimiter(rate.Limit(globalInFlightCap*4), globalInFlightCap*4),
		ctx:                   ctx,
		cancel:                cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops all workers and releases background resources.
func (s *Scheduler) Close() {
	s.cancel()
}

// CreateSession admits a new session if the global and per-user caps
// allow it (evicting the oldest idle candidate first when a cap is only
// exceeded because of evictable sessions), spawns its engine, and starts
// its worker.
func (s *Scheduler) CreateSession(ctx context.Context, owner string, typ core.SessionType, limits core.ResourceLimits, onOverCap func(scope string) (*core.SessionRecord, bool)) (*core.SessionRecord, error) {
	backend, ok := s.backends[typ]
	if !ok {
		return nil, rferrors.NewInternal("no backend registered for session type "+string(typ), nil)
	}

	if s.store.CountActive() >= s.maxConcurrentSessions {
		victim, evicted := onOverCap("global")
		if !evicted {
			metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonOverloaded).Inc()
			return nil, rferrors.NewOverloaded("global session cap reached", nil)
		}
		s.evictSession(victim)
	}
	if s.store.CountActiveByOwner(owner) >= s.maxSessionsPerUser {
		victim, evicted := onOverCap("user:" + owner)
		if !evicted {
			metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonOverloaded).Inc()
			return nil, rferrors.NewOverloaded("per-user session cap reached", nil)
		}
		s.evictSession(victim)
	}

	rec := core.NewSessionRecord(owner, typ, limits)
	if err := s.store.Create(rec); err != nil {
		return nil, err
	}

	handle, err := backend.Spawn(ctx, engine.Limits{
		MaxRules:         limits.MaxRules,
		MaxFacts:         limits.MaxFacts,
		MaxBytes:         limits.MaxBytes,
		HandshakeTimeout: limits.DefaultEvalDeadline,
	})
	if err != nil {
		rec.Status = core.StatusFailed
		s.store.Remove(rec.ID)
		return nil, rferrors.NewEngineFault("spawning engine", err)
	}

	rec.Engine = handle
	rec.Status = core.StatusActive

	w := newWorker(rec, backend, handle, s.bridge, limits.MaxQueueDepth)
	s.mu.Lock()
	s.workers[rec.ID] = w
	s.mu.Unlock()

	go w.run(s.ctx)

	metrics.SessionsActive.Inc()
	metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonAdmitted).Inc()
	return rec, nil
}

func (s *Scheduler) evictSession(rec *core.SessionRecord) {
	if rec == nil {
		return
	}
	_ = s.Terminate(context.Background(), rec.ID)
	metrics.SessionsEvictedTotal.Inc()
}

// Submit admits a job against sessionID's queue. It rejects admission
// with a precise reason per the admission rule: session must exist and
// be Active/Idle, its queue must not be full, and the session must not
// already be Evaluating (which both serializes per-session work and
// implements the nested-tool-safety guarantee: a callback that tries to
// re-enter its own session is rejected here, not deadlocked).
func (s *Scheduler) Submit(ctx context.Context, sessionID core.SessionID, op core.JobOp, script string, timeout time.Duration) (core.JobResult, error) {
	s.mu.Lock()
	w, ok := s.workers[sessionID]
	s.mu.Unlock()

	if !ok {
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonNotFound).Inc()
		return core.JobResult{}, rferrors.NewNotFound("no such session", nil)
	}

	w.mu.Lock()
	status := w.record.Status
	absoluteCeiling := w.record.Limits.AbsoluteEvalCeiling
	w.mu.Unlock()

	switch status {
	case core.StatusTerminating, core.StatusTerminated, core.StatusFailed:
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonTerminating).Inc()
		return core.JobResult{}, rferrors.NewInUse("session is not active", nil)
	}
	if w.evaluating.Load() {
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonInUse).Inc()
		return core.JobResult{}, rferrors.NewInUse("session is already evaluating", nil)
	}
	if !s.limiter.Allow() {
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonOverloaded).Inc()
		return core.JobResult{}, rferrors.NewOverloaded("admission rate exceeded", nil)
	}

	select {
	case s.globalSem <- struct{}{}:
		defer func() { <-s.globalSem }()
	default:
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonOverloaded).Inc()
		return core.JobResult{}, rferrors.NewOverloaded("global in-flight cap reached", nil)
	}

	if timeout <= 0 || timeout > absoluteCeiling {
		timeout = absoluteCeiling
	}

	j := &job{
		id:       uuid.NewString(),
		op:       op,
		script:   script,
		deadline: time.Now().Add(timeout),
		cancel:   make(chan struct{}),
		result:   make(chan core.JobResult, 1),
	}

	if w.stopped.Load() {
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonTerminating).Inc()
		return core.JobResult{}, rferrors.NewInUse("session is not active", nil)
	}

	select {
	case w.queue <- j:
		metrics.JobsQueued.Inc()
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonAdmitted).Inc()
	default:
		metrics.JobsAdmittedTotal.WithLabelValues(metrics.ReasonQueueFull).Inc()
		return core.JobResult{}, rferrors.NewOverloaded("session queue is full", nil)
	}

	select {
	case result := <-j.result:
		return result, result.Err
	case <-ctx.Done():
		close(j.cancel)
		return core.JobResult{}, rferrors.NewCancelled("request cancelled", ctx.Err())
	}
}

// Terminate transitions sessionID to Terminated, idempotently. DELETE on
// an already-terminated or unknown id is a documented no-op success.
func (s *Scheduler) Terminate(_ context.Context, sessionID core.SessionID) error {
	s.mu.Lock()
	w, ok := s.workers[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	w.terminate()

	s.mu.Lock()
	delete(s.workers, sessionID)
	s.mu.Unlock()

	s.store.Remove(sessionID)
	metrics.SessionsActive.Dec()
	return nil
}

// Probe runs backend.HealthProbe against sessionID's handle without
// holding any scheduler-wide lock for the probe's duration. A session
// that is currently evaluating is skipped; a failed probe runs the
// worker's fault handling. Used by the supervisor loop.
func (s *Scheduler) Probe(ctx context.Context, sessionID core.SessionID) error {
	s.mu.Lock()
	w, ok := s.workers[sessionID]
	s.mu.Unlock()
	if !ok {
		return rferrors.NewNotFound("no such session", nil)
	}
	if w.evaluating.Load() {
		return nil
	}

	err := w.backend.HealthProbe(ctx, w.handle)
	if err != nil {
		w.handleFault()
	}
	return err
}

// SessionIDs returns a snapshot of every session id with a live worker,
// for the supervisor loop to iterate without holding the scheduler lock
// while it dispatches.
func (s *Scheduler) SessionIDs() []core.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SessionID, 0, len(s.workers))
	for id := range s.workers {
		out = append(out, id)
	}
	return out
}
