package audit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ruleforge/ruleforge/pkg/logger"
)

// Config controls what the middleware captures. Unlike the HTTP
// middleware itself, request/response bodies are never captured here:
// session scripts and query goals can carry arbitrarily large payloads,
// and the audited fact is the operation and its outcome, not its body.
type Config struct {
	Enabled   bool
	Component string
}

// DefaultConfig enables auditing under the default component name.
func DefaultConfig() *Config {
	return &Config{Enabled: true, Component: ComponentRuleforge}
}

// Auditor logs one AuditEvent per HTTP request through Middleware.
type Auditor struct {
	config *Config
}

// NewAuditor builds an Auditor from config. A nil config uses
// DefaultConfig.
func NewAuditor(config *Config) *Auditor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Auditor{config: config}
}

type statusCapture struct {
	http.ResponseWriter
	statusCode int
}

func (s *statusCapture) WriteHeader(code int) {
	s.statusCode = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware wraps next, logging one audit event per request for the
// session-admission-relevant routes (session create/evaluate/query/
// consult/terminate); every other route is logged as a generic HTTP
// request.
func (a *Auditor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(sc, r)
		a.logEvent(r, sc.statusCode, time.Since(start))
	})
}

func (a *Auditor) logEvent(r *http.Request, statusCode int, elapsed time.Duration) {
	eventType := determineEventType(r)
	outcome := determineOutcome(statusCode)
	source := a.extractSource(r)
	subjects := extractSubjects(r)

	event := NewAuditEventWithID(middleware.GetReqID(r.Context()), eventType, source, outcome, subjects, a.config.Component)
	event.WithTarget(map[string]string{
		TargetKeyType:     TargetTypeSession,
		TargetKeyEndpoint: r.URL.Path,
		TargetKeyMethod:   r.Method,
	})
	event.Metadata.Extra = map[string]any{
		MetadataExtraKeyDuration:  elapsed.Milliseconds(),
		MetadataExtraKeyTransport: "http",
	}

	logger.Infow("audit event",
		"audit_id", event.Metadata.AuditID,
		"type", event.Type,
		"outcome", event.Outcome,
		"user", event.Subjects[SubjectKeyUser],
		"path", r.URL.Path,
		"duration_ms", elapsed.Milliseconds(),
	)
}

func determineEventType(r *http.Request) string {
	path := r.URL.Path
	method := r.Method

	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/evaluate"):
		return EventTypeSessionEvaluate
	case method == http.MethodPost && strings.HasSuffix(path, "/query"):
		return EventTypeSessionQuery
	case method == http.MethodPost && strings.HasSuffix(path, "/consult"):
		return EventTypeSessionConsult
	case method == http.MethodDelete:
		return EventTypeSessionTerminate
	case method == http.MethodPost && (path == "/sessions" || path == "/sessions/" || path == "/devils" || path == "/devils/"):
		return EventTypeSessionCreate
	default:
		return EventTypeHTTPRequest
	}
}

func determineOutcome(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeSuccess
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return OutcomeDenied
	case statusCode >= 400 && statusCode < 500:
		return OutcomeFailure
	case statusCode >= 500:
		return OutcomeError
	default:
		return OutcomeSuccess
	}
}

func (*Auditor) extractSource(r *http.Request) EventSource {
	source := EventSource{Type: SourceTypeNetwork, Value: clientIP(r), Extra: map[string]any{}}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		source.Extra[SourceExtraKeyUserAgent] = ua
	}
	return source
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if parts := strings.Split(xff, ","); len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// extractSubjects identifies the acting user from the route, since
// there is no auth layer to carry verified claims: the session API's
// user_id path parameter is the closest thing to a subject this
// service has.
func extractSubjects(r *http.Request) map[string]string {
	subjects := map[string]string{}
	if userID := chi.URLParam(r, "user_id"); userID != "" {
		subjects[SubjectKeyUserID] = userID
	}
	if subjects[SubjectKeyUserID] == "" {
		subjects[SubjectKeyUser] = "anonymous"
	}
	return subjects
}
