package mangle

import (
	"context"
	"testing"
	"time"

	"github.com/ruleforge/ruleforge/pkg/engine"
)

func TestParseGoal(t *testing.T) {
	pred, args, err := parseGoal("ancestor(tom, Who)")
	if err != nil {
		t.Fatalf("parseGoal() error = %v", err)
	}
	if pred != "ancestor" {
		t.Errorf("pred = %v, want ancestor", pred)
	}
	if len(args) != 2 || args[0] != "tom" || args[1] != "Who" {
		t.Errorf("args = %v", args)
	}
}

func TestUnify(t *testing.T) {
	binding, ok := unify([]string{"tom", "Who"}, []string{"tom", "mary"})
	if !ok {
		t.Fatal("expected unify to succeed")
	}
	if binding["Who"] != "mary" {
		t.Errorf("binding[Who] = %v, want mary", binding["Who"])
	}

	_, ok = unify([]string{"bob", "Who"}, []string{"tom", "mary"})
	if ok {
		t.Error("expected unify to fail on mismatched constant")
	}
}

func TestBackend_ConsultAndQuery_AncestorChain(t *testing.T) {
	b := New()
	hdl, err := b.Spawn(context.Background(), engine.Limits{HandshakeTimeout: time.Second})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	_, err = b.Consult(context.Background(), hdl, []string{
		"parent(tom,mary)",
		"parent(mary,ann)",
	}, deadline)
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}

	result, err := b.Query(context.Background(), hdl, "parent(tom, Who)", true, deadline)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected at least one solution")
	}
	if len(result.Solutions) != 1 || result.Solutions[0]["Who"] != "mary" {
		t.Errorf("Solutions = %v", result.Solutions)
	}
}

func TestBackend_Stats(t *testing.T) {
	b := New()
	hdl, _ := b.Spawn(context.Background(), engine.Limits{HandshakeTimeout: time.Second})
	_, _ = b.Consult(context.Background(), hdl, []string{"parent(tom,mary)"}, time.Now().Add(time.Second))

	stats := b.Stats(hdl)
	if stats.Objects != 1 {
		t.Errorf("Objects = %d, want 1", stats.Objects)
	}
}

func TestNormalizeTerms(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"parent(tom,mary).", `parent("tom","mary").`},
		{"parent(tom, Who).", `parent("tom", Who).`},
		{"ancestor(X,Y) :- parent(X,Y).", "ancestor(X,Y) :- parent(X,Y)."},
		{"ancestor(X,Z) :- parent(X,Y), ancestor(Y,Z).", "ancestor(X,Z) :- parent(X,Y), ancestor(Y,Z)."},
		{`tagged("already quoted").`, `tagged("already quoted").`},
		{"count(5).", "count(5)."},
	}
	for _, tt := range tests {
		if got := normalizeTerms(tt.in); got != tt.want {
			t.Errorf("normalizeTerms(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Scenario: consult parent facts plus the two ancestor rules, then query
// a rule-derived predicate with all_solutions. Both transitive answers
// must come back.
func TestBackend_Query_RuleDerivedAncestor(t *testing.T) {
	b := New()
	hdl, err := b.Spawn(context.Background(), engine.Limits{HandshakeTimeout: time.Second})
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	_, err = b.Consult(context.Background(), hdl, []string{
		"parent(tom,mary)",
		"parent(mary,ann)",
		"ancestor(X,Y) :- parent(X,Y)",
		"ancestor(X,Z) :- parent(X,Y), ancestor(Y,Z)",
	}, deadline)
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}

	result, err := b.Query(context.Background(), hdl, "ancestor(tom, Who)", true, deadline)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if !result.Success {
		t.Fatal("expected solutions")
	}
	got := map[string]bool{}
	for _, s := range result.Solutions {
		got[s["Who"]] = true
	}
	if !got["mary"] || !got["ann"] {
		t.Errorf("Solutions = %v, want Who=mary and Who=ann", result.Solutions)
	}
}
