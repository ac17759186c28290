package store

import (
	"testing"
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
)

func TestCheckpointStore_SaveGetRemove(t *testing.T) {
	cs := NewCheckpointStore()
	id := core.NewSessionID()

	if _, ok := cs.Get(id); ok {
		t.Fatal("Get on empty store reported a checkpoint")
	}

	cp := Checkpoint{
		Label:     "before-upgrade",
		Metadata:  map[string]any{"ticket": "RF-42"},
		Resources: core.ResourceUsage{Rules: 3, Facts: 7},
		SavedAt:   time.Now(),
	}
	if err := cs.Save(id, cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok := cs.Get(id)
	if !ok {
		t.Fatal("checkpoint missing after Save")
	}
	if got.Label != "before-upgrade" || got.Resources.Facts != 7 {
		t.Errorf("Get() = %+v", got)
	}

	// a later save for the same id replaces the earlier one
	cp.Label = "after-upgrade"
	if err := cs.Save(id, cp); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ = cs.Get(id)
	if got.Label != "after-upgrade" {
		t.Errorf("Label = %q, want after-upgrade", got.Label)
	}

	cs.Remove(id)
	if _, ok := cs.Get(id); ok {
		t.Error("checkpoint still present after Remove")
	}
}
