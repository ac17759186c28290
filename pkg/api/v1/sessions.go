package v1

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/corectx"
	"github.com/ruleforge/ruleforge/pkg/logger"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// SessionsHandler serves both the forward-chaining /sessions surface
// and the backward-chaining /devils surface; sessionType selects which
// engine backend new sessions bind to.
type SessionsHandler struct {
	cc          *corectx.CoreContext
	sessionType core.SessionType
}

// NewSessionsHandler builds a handler for the given session type.
func NewSessionsHandler(cc *corectx.CoreContext, sessionType core.SessionType) *SessionsHandler {
	return &SessionsHandler{cc: cc, sessionType: sessionType}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	rfErr, ok := err.(*rferrors.Error)
	if !ok {
		rfErr = rferrors.NewInternal(err.Error(), err)
	}
	logger.Errorw("request failed", "kind", string(rfErr.Kind), "message", rfErr.Message)
	writeJSON(w, rfErr.HTTPStatus(), ErrorBody{
		Error:   string(rfErr.Kind),
		Message: rfErr.Message,
	})
}

// Create godoc
//
// @Summary      Create a session
// @Description  Creates a new reasoning session for the given user.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        request body CreateSessionRequest true "Session parameters"
// @Success      201 {object} SessionSummary
// @Failure      400 {object} ErrorBody
// @Failure      429 {object} ErrorBody
// @Router       /sessions [post]
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}
	if req.UserID == "" {
		writeError(w, rferrors.NewValidation("user_id is required", nil))
		return
	}

	limits := h.cc.Limits()
	if req.Limits != nil {
		if req.Limits.MaxRules > 0 {
			limits.MaxRules = req.Limits.MaxRules
		}
		if req.Limits.MaxFacts > 0 {
			limits.MaxFacts = req.Limits.MaxFacts
		}
		if req.Limits.MaxQueueDepth > 0 {
			limits.MaxQueueDepth = req.Limits.MaxQueueDepth
		}
	}

	rec, err := h.cc.Scheduler.CreateSession(r.Context(), req.UserID, h.sessionType, limits, h.cc.EvictionPicker(req.UserID))
	if err != nil {
		writeError(w, err)
		return
	}

	for _, clause := range req.Preload {
		if _, err := h.cc.Scheduler.Submit(r.Context(), rec.ID, core.OpConsult, clause, limits.DefaultEvalDeadline); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, toSummary(rec))
}

// List godoc
//
// @Summary      List sessions
// @Tags         sessions
// @Produce      json
// @Success      200 {array} SessionSummary
// @Router       /sessions [get]
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.cc.Store.List()
	summaries := make([]SessionSummary, 0, len(records))
	for _, rec := range records {
		if rec.Type != h.sessionType {
			continue
		}
		summaries = append(summaries, toSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

// ListByUser godoc
//
// @Summary      List sessions for a user
// @Tags         sessions
// @Produce      json
// @Param        user_id path string true "User id"
// @Success      200 {array} SessionSummary
// @Router       /sessions/user/{user_id} [get]
func (h *SessionsHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	records := h.cc.Store.ListByOwner(userID)
	summaries := make([]SessionSummary, 0, len(records))
	for _, rec := range records {
		if rec.Type != h.sessionType {
			continue
		}
		summaries = append(summaries, toSummary(rec))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *SessionsHandler) lookup(w http.ResponseWriter, r *http.Request) (*core.SessionRecord, bool) {
	id := core.SessionID(chi.URLParam(r, "id"))
	rec, ok := h.cc.Store.Get(id)
	if !ok || rec.Type != h.sessionType {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return nil, false
	}
	return rec, true
}

// Get godoc
//
// @Summary      Get a session
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session id"
// @Success      200 {object} SessionSummary
// @Failure      404 {object} ErrorBody
// @Router       /sessions/{id} [get]
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSummary(rec))
}

// Terminate godoc
//
// @Summary      Terminate a session
// @Description  Idempotent: terminating an already-terminated or unknown id succeeds.
// @Tags         sessions
// @Param        id path string true "Session id"
// @Success      204
// @Router       /sessions/{id} [delete]
func (h *SessionsHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if err := h.cc.Scheduler.Terminate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate godoc
//
// @Summary      Evaluate a script against a session
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id path string true "Session id"
// @Param        request body EvaluateRequest true "Script to run"
// @Success      200 {object} EvaluateResponse
// @Failure      404 {object} ErrorBody
// @Failure      504 {object} ErrorBody
// @Router       /sessions/{id}/evaluate [post]
func (h *SessionsHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.cc.Store.Get(id); !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	result, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpEvaluate, req.Script, timeout)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		ExitCode: result.ExitStatus,
		Metrics:  MetricsWire{ElapsedMS: result.Elapsed.Milliseconds()},
	})
}

// Rules godoc
//
// @Summary      Load rules into a session
// @Tags         sessions
// @Accept       json
// @Param        id path string true "Session id"
// @Param        request body RulesRequest true "Rules"
// @Success      200 {object} ConsultResponse
// @Router       /sessions/{id}/rules [post]
func (h *SessionsHandler) Rules(w http.ResponseWriter, r *http.Request) {
	h.consult(w, r, "defrule")
}

// Facts godoc
//
// @Summary      Assert facts into a session
// @Tags         sessions
// @Accept       json
// @Param        id path string true "Session id"
// @Param        request body FactsRequest true "Facts"
// @Success      200 {object} ConsultResponse
// @Router       /sessions/{id}/facts [post]
func (h *SessionsHandler) AssertFacts(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.cc.Store.Get(id); !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	var req FactsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}

	count := 0
	for _, fact := range req.Facts {
		if _, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpFact, fact, h.cc.Config.DefaultEvalTimeout); err != nil {
			writeError(w, err)
			return
		}
		count++
	}
	writeJSON(w, http.StatusOK, ConsultResponse{Status: "ok", Count: count})
}

func (h *SessionsHandler) consult(w http.ResponseWriter, r *http.Request, _ string) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.cc.Store.Get(id); !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	var req RulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}

	count := 0
	for _, rule := range req.Rules {
		if _, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpConsult, rule, h.cc.Config.DefaultEvalTimeout); err != nil {
			writeError(w, err)
			return
		}
		count++
	}
	writeJSON(w, http.StatusOK, ConsultResponse{Status: "ok", Count: count})
}

// FactsQuery godoc
//
// @Summary      Query facts currently held by a session
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session id"
// @Param        pattern query string false "Pattern to match"
// @Success      200 {object} FactsResponse
// @Router       /sessions/{id}/facts [get]
func (h *SessionsHandler) FactsQuery(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.cc.Store.Get(id); !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	pattern := r.URL.Query().Get("pattern")
	result, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpQuery, pattern, h.cc.Config.DefaultEvalTimeout)
	if err != nil {
		writeError(w, err)
		return
	}

	matches := []string{}
	if result.Stdout != "no solutions" {
		matches = splitNonEmptyLines(result.Stdout)
	}
	writeJSON(w, http.StatusOK, FactsResponse{Matches: matches, Count: len(matches)})
}

func splitNonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Run godoc
//
// @Summary      Run the forward-chaining inference loop
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id path string true "Session id"
// @Param        request body RunRequest true "Run parameters"
// @Success      200 {object} RunResponse
// @Router       /sessions/{id}/run [post]
func (h *SessionsHandler) Run(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	rec, ok := h.cc.Store.Get(id)
	if !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	var req RunRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	script := "(run)"
	if req.MaxIterations > 0 {
		script = "(run " + strconv.Itoa(req.MaxIterations) + ")"
	}

	start := time.Now()
	result, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpRun, script, h.cc.Config.DefaultEvalTimeout)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		RulesFired: rec.Usage.RulesFired,
		Status:     string(rec.Status),
		RuntimeMS:  time.Since(start).Milliseconds(),
	})
	_ = result
}

// Save godoc
//
// @Summary      Persist checkpoint metadata for a session
// @Description  A state-update no-op: it persists {label, metadata} next to the session record and never serializes engine state.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        id path string true "Session id"
// @Param        request body SaveRequest true "Checkpoint metadata"
// @Success      200 {object} SaveResponse
// @Router       /sessions/{id}/save [post]
func (h *SessionsHandler) Save(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}

	if err := h.cc.SaveCheckpoint(rec.ID, req.Label, req.Metadata); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Status: "ok"})
}

// Query godoc
//
// @Summary      Run a backward-chaining query
// @Tags         devils
// @Accept       json
// @Produce      json
// @Param        id path string true "Session id"
// @Param        request body QueryRequest true "Query"
// @Success      200 {object} QueryResponse
// @Router       /devils/{id}/query [post]
func (h *SessionsHandler) Query(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.cc.Store.Get(id); !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}

	start := time.Now()
	result, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpQuery, req.Goal, h.cc.Config.DefaultEvalTimeout)
	if err != nil {
		writeError(w, err)
		return
	}

	solutions := parseSolutions(result.Stdout)
	writeJSON(w, http.StatusOK, QueryResponse{
		Result:    solutions,
		Success:   len(solutions) > 0,
		RuntimeMS: time.Since(start).Milliseconds(),
	})
}

func parseSolutions(stdout string) []map[string]string {
	var out []map[string]string
	for _, line := range splitNonEmptyLines(stdout) {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out = append(out, map[string]string{k: v})
	}
	return out
}

// Consult godoc
//
// @Summary      Load clauses into a backward-chaining session
// @Tags         devils
// @Accept       json
// @Produce      json
// @Param        id path string true "Session id"
// @Param        request body ConsultRequest true "Clauses"
// @Success      200 {object} ConsultResponse
// @Router       /devils/{id}/consult [post]
func (h *SessionsHandler) Consult(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, ok := h.cc.Store.Get(id); !ok {
		writeError(w, rferrors.NewNotFound("no such session", nil))
		return
	}

	var req ConsultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, rferrors.NewValidation("malformed request body", err))
		return
	}

	count := 0
	for _, clause := range req.Clauses {
		if _, err := h.cc.Scheduler.Submit(r.Context(), id, core.OpConsult, clause, h.cc.Config.DefaultEvalTimeout); err != nil {
			writeError(w, err)
			return
		}
		count++
	}
	writeJSON(w, http.StatusOK, ConsultResponse{Status: "ok", Count: count})
}
