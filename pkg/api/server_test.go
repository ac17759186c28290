package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/ruleforge/ruleforge/pkg/api/v1"
	"github.com/ruleforge/ruleforge/pkg/config"
	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/corectx"
)

func newTestServer(t *testing.T) (*httptest.Server, *corectx.CoreContext) {
	t.Helper()
	cfg := config.Default()
	cc := corectx.Build(&cfg)
	t.Cleanup(cc.Shutdown)

	ts := httptest.NewServer(NewRouter(cc))
	t.Cleanup(ts.Close)
	return ts, cc
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestOpenAPIDocument(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/openapi.json")
	if err != nil {
		t.Fatalf("GET /api/openapi.json: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decoding document: %v", err)
	}
	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatalf("document has no paths object: %v", doc)
	}
	for _, want := range []string{"/sessions", "/sessions/{id}/evaluate", "/devils/{id}/query"} {
		if _, ok := paths[want]; !ok {
			t.Errorf("document missing path %s", want)
		}
	}
}

type staticTool struct {
	name string
}

func (s staticTool) Name() string        { return s.name }
func (s staticTool) Description() string { return "a test tool" }
func (staticTool) Execute(context.Context, map[string]any) (any, error) {
	return "ok", nil
}

func TestDiscoveryTools(t *testing.T) {
	ts, cc := newTestServer(t)
	cc.RegisterTool(staticTool{name: "clock"})

	var out struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	status := doJSON(t, http.MethodGet, ts.URL+"/api/v1/discovery/tools", nil, &out)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "clock" {
		t.Errorf("Tools = %+v, want one tool named clock", out.Tools)
	}
}

func TestDevilsSessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	var created v1.SessionSummary
	status := doJSON(t, http.MethodPost, ts.URL+"/devils", v1.CreateSessionRequest{UserID: "alice"}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", status)
	}
	if created.SessionID == "" || created.UserID != "alice" {
		t.Fatalf("summary = %+v", created)
	}
	if created.Status != core.StatusActive {
		t.Errorf("status = %q, want active", created.Status)
	}

	var fetched v1.SessionSummary
	if s := doJSON(t, http.MethodGet, ts.URL+"/devils/"+created.SessionID, nil, &fetched); s != http.StatusOK {
		t.Fatalf("get status = %d, want 200", s)
	}
	if fetched.SessionID != created.SessionID {
		t.Errorf("fetched id = %q, want %q", fetched.SessionID, created.SessionID)
	}

	var listed []v1.SessionSummary
	if s := doJSON(t, http.MethodGet, ts.URL+"/devils/user/alice", nil, &listed); s != http.StatusOK {
		t.Fatalf("list-by-user status = %d, want 200", s)
	}
	if len(listed) != 1 {
		t.Errorf("listed %d sessions, want 1", len(listed))
	}

	// terminate, twice: DELETE is idempotent
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/devils/"+created.SessionID, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("delete #%d status = %d, want 204", i+1, resp.StatusCode)
		}
	}

	// after DELETE, lookups return NotFound
	var errBody v1.ErrorBody
	if s := doJSON(t, http.MethodGet, ts.URL+"/devils/"+created.SessionID, nil, &errBody); s != http.StatusNotFound {
		t.Errorf("get-after-delete status = %d, want 404", s)
	}
	if errBody.Error != "not_found" {
		t.Errorf("error = %q, want not_found", errBody.Error)
	}
}

func TestCreateSession_MissingUserID(t *testing.T) {
	ts, _ := newTestServer(t)

	var errBody v1.ErrorBody
	status := doJSON(t, http.MethodPost, ts.URL+"/devils", v1.CreateSessionRequest{}, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if errBody.Error != "validation" {
		t.Errorf("error = %q, want validation", errBody.Error)
	}
}

// Scenario: consult ancestor clauses, query with all_solutions, expect
// both transitive answers on the wire.
func TestDevilsConsultAndQuery(t *testing.T) {
	ts, _ := newTestServer(t)

	var created v1.SessionSummary
	if s := doJSON(t, http.MethodPost, ts.URL+"/devils", v1.CreateSessionRequest{UserID: "alice"}, &created); s != http.StatusCreated {
		t.Fatalf("create status = %d", s)
	}

	var consulted v1.ConsultResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/devils/"+created.SessionID+"/consult", v1.ConsultRequest{
		Clauses: []string{
			"parent(tom,mary)",
			"parent(mary,ann)",
			"ancestor(X,Y) :- parent(X,Y)",
			"ancestor(X,Z) :- parent(X,Y), ancestor(Y,Z)",
		},
	}, &consulted)
	if status != http.StatusOK {
		t.Fatalf("consult status = %d", status)
	}
	if consulted.Count != 4 {
		t.Errorf("consulted count = %d, want 4", consulted.Count)
	}

	var queried v1.QueryResponse
	status = doJSON(t, http.MethodPost, ts.URL+"/devils/"+created.SessionID+"/query", v1.QueryRequest{
		Goal:         "ancestor(tom, Who)",
		AllSolutions: true,
	}, &queried)
	if status != http.StatusOK {
		t.Fatalf("query status = %d", status)
	}
	if !queried.Success {
		t.Fatal("query reported no solutions")
	}
	got := map[string]bool{}
	for _, solution := range queried.Result {
		for k, v := range solution {
			if k == "Who" {
				got[v] = true
			}
		}
	}
	if !got["mary"] || !got["ann"] {
		t.Errorf("solutions = %v, want Who=mary and Who=ann", queried.Result)
	}
}

func TestDevilsSave(t *testing.T) {
	ts, cc := newTestServer(t)

	var created v1.SessionSummary
	if s := doJSON(t, http.MethodPost, ts.URL+"/devils", v1.CreateSessionRequest{UserID: "alice"}, &created); s != http.StatusCreated {
		t.Fatalf("create status = %d", s)
	}

	var saved v1.SaveResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/devils/"+created.SessionID+"/save", v1.SaveRequest{
		Label:    "before-upgrade",
		Metadata: map[string]any{"ticket": "RF-42"},
	}, &saved)
	if status != http.StatusOK {
		t.Fatalf("save status = %d", status)
	}
	if saved.Status != "ok" {
		t.Errorf("save status field = %q, want ok", saved.Status)
	}

	cp, ok := cc.Checkpoints.Get(core.SessionID(created.SessionID))
	if !ok {
		t.Fatal("checkpoint not recorded")
	}
	if cp.Label != "before-upgrade" {
		t.Errorf("label = %q", cp.Label)
	}
}

func TestSessionSummaryWireShape(t *testing.T) {
	ts, _ := newTestServer(t)

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(v1.CreateSessionRequest{UserID: "alice"})
	resp, err := http.Post(ts.URL+"/devils", "application/json", &buf)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	for _, field := range []string{"session_id", "user_id", "type", "started", "touched", "status", "resources", "limits"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("summary missing snake_case field %q, got keys %v", field, keysOf(raw))
		}
	}
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
