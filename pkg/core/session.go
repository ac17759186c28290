// Package core holds the domain types shared by the scheduler, the
// session store, and the engine backends: sessions, resource accounting,
// and the scheduled-job record. None of these types know how to talk to
// an engine or a store; they are plain data plus the small invariants
// that fall out of being plain data (status transitions, cap checks).
package core

import (
	"time"

	"github.com/google/uuid"
)

// SessionID is an opaque, globally unique, stable identifier.
type SessionID string

// NewSessionID mints a fresh SessionID.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// SessionType distinguishes which EngineBackend implementation backs a
// session. It is otherwise invisible to the scheduler.
type SessionType string

const (
	SessionTypeForward  SessionType = "forward"
	SessionTypeBackward SessionType = "backward"
)

// SessionStatus is one of a fixed set of lifecycle states. It is monotone
// except for the Active/Evaluating/Idle cycle.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusActive        SessionStatus = "active"
	StatusEvaluating     SessionStatus = "evaluating"
	StatusIdle           SessionStatus = "idle"
	StatusTerminating    SessionStatus = "terminating"
	StatusTerminated     SessionStatus = "terminated"
	StatusFailed         SessionStatus = "failed"
)

// ResourceUsage tracks cumulative counters for a session. Usage never
// decreases except on an explicit reset (a fresh spawn after recovery).
type ResourceUsage struct {
	Rules       int
	Facts       int
	Objects     int
	Evaluations int64
	RulesFired  int64
	ApproxBytes int64
}

// ResourceLimits are immutable after session creation.
type ResourceLimits struct {
	MaxRules             int
	MaxFacts             int
	MaxBytes             int64
	MaxQueueDepth        int
	DefaultEvalDeadline  time.Duration
	AbsoluteEvalCeiling  time.Duration
}

// DefaultResourceLimits returns a conservative, always-valid set of caps.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxRules:            1000,
		MaxFacts:             10000,
		MaxBytes:             64 << 20,
		MaxQueueDepth:        32,
		DefaultEvalDeadline:  5 * time.Second,
		AbsoluteEvalCeiling:  60 * time.Second,
	}
}

// EngineHandle is the opaque reference a SessionRecord's worker holds to
// its backing engine. It is declared here so core need not import the
// engine package; core only needs to store and nil-check it.
type EngineHandle interface {
	// Broken reports whether the handle has been marked unusable by its
	// owning worker, e.g. after an EngineFault.
	Broken() bool
}

// SessionRecord is the authoritative metadata for one session. It is
// created by the store and mutated only by the single worker that owns
// its queue.
type SessionRecord struct {
	ID        SessionID
	Owner     string
	Type      SessionType
	Status    SessionStatus
	CreatedAt time.Time
	TouchedAt time.Time
	Usage     ResourceUsage
	Limits    ResourceLimits
	Engine    EngineHandle
}

// NewSessionRecord constructs a fresh record in the Initializing state.
func NewSessionRecord(owner string, typ SessionType, limits ResourceLimits) *SessionRecord {
	now := time.Now().UTC()
	return &SessionRecord{
		ID:        NewSessionID(),
		Owner:     owner,
		Type:      typ,
		Status:    StatusInitializing,
		CreatedAt: now,
		TouchedAt: now,
		Limits:    limits,
	}
}

// Touch bumps TouchedAt to now. Callers must hold whatever lock the
// session's owning worker uses before calling this.
func (s *SessionRecord) Touch() {
	s.TouchedAt = time.Now().UTC()
}

// ScheduledJob is the unit of work the Scheduler admits and a worker
// executes against a single session's engine handle.
type ScheduledJob struct {
	SessionID SessionID
	Op        JobOp
	Script    string
	Deadline  time.Time
	Cancel    chan struct{}
	Result    chan JobResult
}

// JobOp names the kind of operation a ScheduledJob performs.
type JobOp string

const (
	OpEvaluate JobOp = "evaluate"
	OpConsult  JobOp = "consult"
	OpFact     JobOp = "fact"
	OpQuery    JobOp = "query"
	OpRun      JobOp = "run"
)

// JobResult carries either a successful evaluation outcome or an error.
type JobResult struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	Elapsed    time.Duration
	Err        error
}
