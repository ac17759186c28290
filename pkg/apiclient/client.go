// Package apiclient is a thin HTTP client for the RULEFORGE session
// API, used by ruleforgectl and by integration tests that would
// otherwise have to hand-build requests.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	v1 "github.com/ruleforge/ruleforge/pkg/api/v1"
)

// Client talks to one ruleforged instance over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://127.0.0.1:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is returned for any non-2xx response; it carries the
// decoded error body when the server returned one.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody v1.ErrorBody
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{StatusCode: resp.StatusCode, Kind: errBody.Error, Message: errBody.Message}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// surface selects the /sessions or /devils route prefix for a given
// session kind, so the same client methods serve both engine types.
func surface(backward bool) string {
	if backward {
		return "/devils"
	}
	return "/sessions"
}

// CreateSession creates a new session of the given kind.
func (c *Client) CreateSession(ctx context.Context, backward bool, req v1.CreateSessionRequest) (v1.SessionSummary, error) {
	var out v1.SessionSummary
	err := c.do(ctx, http.MethodPost, surface(backward), req, &out)
	return out, err
}

// ListSessions lists every session of the given kind.
func (c *Client) ListSessions(ctx context.Context, backward bool) ([]v1.SessionSummary, error) {
	var out []v1.SessionSummary
	err := c.do(ctx, http.MethodGet, surface(backward), nil, &out)
	return out, err
}

// GetSession fetches one session's summary.
func (c *Client) GetSession(ctx context.Context, backward bool, id string) (v1.SessionSummary, error) {
	var out v1.SessionSummary
	err := c.do(ctx, http.MethodGet, surface(backward)+"/"+url.PathEscape(id), nil, &out)
	return out, err
}

// TerminateSession deletes a session. Idempotent, per the API contract.
func (c *Client) TerminateSession(ctx context.Context, backward bool, id string) error {
	return c.do(ctx, http.MethodDelete, surface(backward)+"/"+url.PathEscape(id), nil, nil)
}

// Evaluate submits a forward-chaining script for evaluation.
func (c *Client) Evaluate(ctx context.Context, id string, req v1.EvaluateRequest) (v1.EvaluateResponse, error) {
	var out v1.EvaluateResponse
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/evaluate", req, &out)
	return out, err
}

// Query submits a backward-chaining query.
func (c *Client) Query(ctx context.Context, id string, req v1.QueryRequest) (v1.QueryResponse, error) {
	var out v1.QueryResponse
	err := c.do(ctx, http.MethodPost, "/devils/"+url.PathEscape(id)+"/query", req, &out)
	return out, err
}

// Consult asserts backward-chaining clauses into a session.
func (c *Client) Consult(ctx context.Context, id string, req v1.ConsultRequest) (v1.ConsultResponse, error) {
	var out v1.ConsultResponse
	err := c.do(ctx, http.MethodPost, "/devils/"+url.PathEscape(id)+"/consult", req, &out)
	return out, err
}

// Save persists checkpoint metadata for a session of either kind.
func (c *Client) Save(ctx context.Context, backward bool, id string, req v1.SaveRequest) (v1.SaveResponse, error) {
	var out v1.SaveResponse
	err := c.do(ctx, http.MethodPost, surface(backward)+"/"+url.PathEscape(id)+"/save", req, &out)
	return out, err
}
