package apiclient

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/ruleforge/ruleforge/pkg/api"
	v1 "github.com/ruleforge/ruleforge/pkg/api/v1"
	"github.com/ruleforge/ruleforge/pkg/config"
	"github.com/ruleforge/ruleforge/pkg/corectx"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Default()
	cc := corectx.Build(&cfg)
	t.Cleanup(cc.Shutdown)

	ts := httptest.NewServer(api.NewRouter(cc))
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestClient_SessionRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.CreateSession(ctx, true, v1.CreateSessionRequest{UserID: "alice"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("empty session_id")
	}

	listed, err := c.ListSessions(ctx, true)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d sessions, want 1", len(listed))
	}

	consulted, err := c.Consult(ctx, created.SessionID, v1.ConsultRequest{
		Clauses: []string{"parent(tom,mary)", "parent(mary,ann)"},
	})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if consulted.Count != 2 {
		t.Errorf("Count = %d, want 2", consulted.Count)
	}

	queried, err := c.Query(ctx, created.SessionID, v1.QueryRequest{Goal: "parent(tom, Who)", AllSolutions: true})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !queried.Success {
		t.Error("query reported no solutions")
	}

	if err := c.TerminateSession(ctx, true, created.SessionID); err != nil {
		t.Fatalf("TerminateSession() error = %v", err)
	}
}

func TestClient_NotFoundSurfacesAPIError(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetSession(context.Background(), true, "missing")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %T(%v), want *APIError", err, err)
	}
	if apiErr.StatusCode != 404 || apiErr.Kind != "not_found" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
