package eviction

import (
	"context"
	"testing"
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/store"
)

type fakeTerminator struct {
	terminated []core.SessionID
}

func (f *fakeTerminator) Terminate(_ context.Context, id core.SessionID) error {
	f.terminated = append(f.terminated, id)
	return nil
}

func TestPolicy_SelectForScope_SkipsEvaluating(t *testing.T) {
	st := store.New()
	older := core.NewSessionRecord("alice", core.SessionTypeForward, core.DefaultResourceLimits())
	older.Status = core.StatusIdle
	older.TouchedAt = time.Now().Add(-time.Hour)
	evaluating := core.NewSessionRecord("alice", core.SessionTypeForward, core.DefaultResourceLimits())
	evaluating.Status = core.StatusEvaluating
	evaluating.TouchedAt = time.Now().Add(-2 * time.Hour)

	_ = st.Create(older)
	_ = st.Create(evaluating)

	p := New(st, time.Minute)
	victim, ok := p.SelectForScope("global", "")
	if !ok {
		t.Fatal("expected a victim")
	}
	if victim.ID != older.ID {
		t.Errorf("victim = %v, want %v", victim.ID, older.ID)
	}
}

func TestPolicy_SelectForScope_NoneQualify(t *testing.T) {
	st := store.New()
	evaluating := core.NewSessionRecord("alice", core.SessionTypeForward, core.DefaultResourceLimits())
	evaluating.Status = core.StatusEvaluating
	_ = st.Create(evaluating)

	p := New(st, time.Minute)
	_, ok := p.SelectForScope("global", "")
	if ok {
		t.Fatal("expected no victim when all sessions are evaluating")
	}
}

func TestPolicy_SweepIdle(t *testing.T) {
	st := store.New()
	stale := core.NewSessionRecord("alice", core.SessionTypeForward, core.DefaultResourceLimits())
	stale.Status = core.StatusIdle
	stale.TouchedAt = time.Now().Add(-time.Hour)
	fresh := core.NewSessionRecord("alice", core.SessionTypeForward, core.DefaultResourceLimits())
	fresh.Status = core.StatusIdle
	fresh.TouchedAt = time.Now()

	_ = st.Create(stale)
	_ = st.Create(fresh)

	p := New(st, time.Minute)
	term := &fakeTerminator{}
	p.SweepIdle(context.Background(), term)

	if len(term.terminated) != 1 || term.terminated[0] != stale.ID {
		t.Errorf("terminated = %v, want [%v]", term.terminated, stale.ID)
	}
}
