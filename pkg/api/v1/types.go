// Package v1 implements the HTTP surface: chi handlers that adapt the
// core's CoreContext operations to the wire shapes in the core spec's
// external-interfaces section. Field names are snake_case on the wire,
// matching the frozen convention; adapters accepting camelCase would
// normalize before reaching here, but none are wired in this service.
package v1

import (
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
)

// CreateSessionRequest is the body of POST /sessions and POST /devils.
type CreateSessionRequest struct {
	UserID   string         `json:"user_id"`
	Preload  []string       `json:"preload,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Limits   *LimitsWire    `json:"limits,omitempty"`
}

// LimitsWire is the wire shape of core.ResourceLimits.
type LimitsWire struct {
	MaxRules      int `json:"max_rules,omitempty"`
	MaxFacts      int `json:"max_facts,omitempty"`
	MaxQueueDepth int `json:"max_queue_depth,omitempty"`
}

// ResourcesWire reports current usage on a SessionSummary.
type ResourcesWire struct {
	Facts   int `json:"facts"`
	Rules   int `json:"rules"`
	Objects int `json:"objects"`
}

// SessionLimitsWire reports the session's caps on a SessionSummary.
type SessionLimitsWire struct {
	Facts    int `json:"facts"`
	Rules    int `json:"rules"`
	Objects  int `json:"objects"`
	MemoryMB int `json:"memory_mb"`
}

// SessionSummary is the shape returned by every session-listing and
// session-detail endpoint.
type SessionSummary struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Type      core.SessionType  `json:"type"`
	Started   time.Time         `json:"started"`
	Touched   time.Time         `json:"touched"`
	Status    core.SessionStatus `json:"status"`
	Resources ResourcesWire     `json:"resources"`
	Limits    SessionLimitsWire `json:"limits"`
}

// EvaluateRequest is the body of POST /sessions/{id}/evaluate.
type EvaluateRequest struct {
	Script    string `json:"script"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// MetricsWire reports elapsed time on an evaluate response.
type MetricsWire struct {
	ElapsedMS int64 `json:"elapsed_ms"`
}

// EvaluateResponse is the body of a successful evaluate.
type EvaluateResponse struct {
	Stdout   string      `json:"stdout"`
	Stderr   string      `json:"stderr"`
	ExitCode int         `json:"exit_code"`
	Metrics  MetricsWire `json:"metrics"`
}

// RulesRequest is the body of POST /sessions/{id}/rules.
type RulesRequest struct {
	Rules []string `json:"rules"`
}

// FactsRequest is the body of POST /sessions/{id}/facts.
type FactsRequest struct {
	Facts []string `json:"facts"`
}

// FactsResponse is the body of GET /sessions/{id}/facts.
type FactsResponse struct {
	Matches []string `json:"matches"`
	Count   int      `json:"count"`
}

// RunRequest is the body of POST /sessions/{id}/run.
type RunRequest struct {
	MaxIterations int `json:"max_iterations,omitempty"`
}

// RunResponse is the body of a successful /run.
type RunResponse struct {
	RulesFired int64  `json:"rules_fired"`
	Status     string `json:"status"`
	RuntimeMS  int64  `json:"runtime_ms"`
}

// SaveRequest is the body of POST /sessions/{id}/save.
type SaveRequest struct {
	Label    string         `json:"label,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SaveResponse is the body of a successful /save.
type SaveResponse struct {
	Status string `json:"status"`
}

// QueryRequest is the body of POST /devils/{id}/query.
type QueryRequest struct {
	Goal         string `json:"goal"`
	AllSolutions bool   `json:"all_solutions,omitempty"`
}

// QueryResponse is the body of a successful /devils/{id}/query.
type QueryResponse struct {
	Result    []map[string]string `json:"result"`
	Success   bool                `json:"success"`
	RuntimeMS int64               `json:"runtime_ms"`
}

// ConsultRequest is the body of POST /devils/{id}/consult.
type ConsultRequest struct {
	Clauses []string `json:"clauses"`
}

// ConsultResponse is the body of a successful /devils/{id}/consult.
type ConsultResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ErrorBody is the wire shape of every non-2xx response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func toSummary(rec *core.SessionRecord) SessionSummary {
	return SessionSummary{
		SessionID: string(rec.ID),
		UserID:    rec.Owner,
		Type:      rec.Type,
		Started:   rec.CreatedAt,
		Touched:   rec.TouchedAt,
		Status:    rec.Status,
		Resources: ResourcesWire{
			Facts:   rec.Usage.Facts,
			Rules:   rec.Usage.Rules,
			Objects: rec.Usage.Objects,
		},
		Limits: SessionLimitsWire{
			Facts:    rec.Limits.MaxFacts,
			Rules:    rec.Limits.MaxRules,
			Objects:  rec.Limits.MaxQueueDepth,
			MemoryMB: int(rec.Limits.MaxBytes / (1 << 20)),
		},
	}
}
