// Package audit provides structured audit logging for admission
// decisions and session operations: who asked for what, whether it was
// granted, and why. Events are logged as structured JSON lines via
// pkg/logger rather than persisted to a separate durable store.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for the operations worth auditing.
const (
	EventTypeHTTPRequest      = "http_request"
	EventTypeSessionCreate    = "session_create"
	EventTypeSessionEvaluate  = "session_evaluate"
	EventTypeSessionQuery     = "session_query"
	EventTypeSessionConsult   = "session_consult"
	EventTypeSessionTerminate = "session_terminate"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
	OutcomeDenied  = "denied"
)

// Source type constants.
const (
	SourceTypeNetwork = "network"
	SourceTypeLocal   = "local"
)

// Source extra-field keys.
const (
	SourceExtraKeyUserAgent = "user_agent"
	SourceExtraKeyRequestID = "request_id"
)

// Subject keys.
const (
	SubjectKeyUser          = "user"
	SubjectKeyUserID        = "user_id"
	SubjectKeyClientName    = "client_name"
	SubjectKeyClientVersion = "client_version"
)

// Target keys and types.
const (
	TargetKeyType     = "type"
	TargetKeyName     = "name"
	TargetKeyEndpoint = "endpoint"
	TargetKeyMethod   = "method"

	TargetTypeSession = "session"
	TargetTypeTool    = "tool"
)

// Metadata extra-field keys.
const (
	MetadataExtraKeyDuration     = "duration_ms"
	MetadataExtraKeyTransport    = "transport"
	MetadataExtraKeyMCPVersion   = "mcp_version"
	MetadataExtraKeyResponseSize = "response_size"
)

// ComponentRuleforge identifies the session host as the emitting
// component, the way every event's Component field is populated by
// default.
const ComponentRuleforge = "ruleforge-api"

// EventSource identifies where an audited action originated: a network
// peer (HTTP) or the local stdio adapter.
type EventSource struct {
	Type  string         `json:"type"`
	Value string         `json:"value"`
	Extra map[string]any `json:"extra,omitempty"`
}

// EventMetadata carries bookkeeping fields every audit event has, plus
// a free-form extra bag for event-specific details.
type EventMetadata struct {
	AuditID string         `json:"audit_id"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// AuditEvent is one structured admission-decision or session-operation
// record.
type AuditEvent struct {
	Type      string            `json:"type"`
	Outcome   string            `json:"outcome"`
	Source    EventSource       `json:"source"`
	Subjects  map[string]string `json:"subjects"`
	Target    map[string]string `json:"target,omitempty"`
	Component string            `json:"component"`
	Metadata  EventMetadata     `json:"metadata"`
	LoggedAt  time.Time         `json:"logged_at"`
	Data      *json.RawMessage  `json:"data,omitempty"`
}

// NewAuditEvent builds an event with a freshly minted audit id.
func NewAuditEvent(eventType string, source EventSource, outcome string, subjects map[string]string, component string) *AuditEvent {
	return NewAuditEventWithID(uuid.NewString(), eventType, source, outcome, subjects, component)
}

// NewAuditEventWithID builds an event reusing auditID as its correlation
// id, for callers that already have one (e.g. the request id a
// middleware assigned upstream).
func NewAuditEventWithID(auditID, eventType string, source EventSource, outcome string, subjects map[string]string, component string) *AuditEvent {
	return &AuditEvent{
		Type:      eventType,
		Outcome:   outcome,
		Source:    source,
		Subjects:  subjects,
		Component: component,
		Metadata:  EventMetadata{AuditID: auditID},
		LoggedAt:  time.Now().UTC(),
	}
}

// WithTarget attaches target information and returns the event for
// chaining.
func (e *AuditEvent) WithTarget(target map[string]string) *AuditEvent {
	e.Target = target
	return e
}

// WithData attaches an arbitrary JSON payload and returns the event for
// chaining.
func (e *AuditEvent) WithData(data *json.RawMessage) *AuditEvent {
	e.Data = data
	return e
}

// WithDataFromString parses s as a JSON payload and attaches it,
// returning the event for chaining. Invalid JSON is attached as a
// quoted string rather than dropped.
func (e *AuditEvent) WithDataFromString(s string) *AuditEvent {
	raw := json.RawMessage(s)
	if !json.Valid(raw) {
		if quoted, err := json.Marshal(s); err == nil {
			raw = quoted
		}
	}
	return e.WithData(&raw)
}
