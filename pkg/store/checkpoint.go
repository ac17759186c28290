package store

import (
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// Checkpoint is the metadata-only sidecar persisted by a /save call: a
// label, caller-supplied metadata, and the resource usage at the moment
// of the call. It never captures engine state.
type Checkpoint struct {
	Label     string            `yaml:"label,omitempty"`
	Metadata  map[string]any    `yaml:"metadata,omitempty"`
	Resources core.ResourceUsage `yaml:"resources"`
	SavedAt   time.Time         `yaml:"saved_at"`
}

// CheckpointStore holds one Checkpoint per session, serialized to YAML
// bytes on write so the on-disk/sidecar shape (were one ever wired to a
// filesystem) is fixed independently of the in-memory representation.
type CheckpointStore struct {
	mu    sync.RWMutex
	bytes map[core.SessionID][]byte
}

// NewCheckpointStore builds an empty CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{bytes: make(map[core.SessionID][]byte)}
}

// Save marshals cp to YAML and stores it under id, replacing any prior
// checkpoint for that session.
func (c *CheckpointStore) Save(id core.SessionID, cp Checkpoint) error {
	b, err := yaml.Marshal(cp)
	if err != nil {
		return rferrors.NewInternal("encoding checkpoint", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes[id] = b
	return nil
}

// Get returns the most recently saved checkpoint for id, or (Checkpoint{}, false)
// if none has been saved.
func (c *CheckpointStore) Get(id core.SessionID) (Checkpoint, bool) {
	c.mu.RLock()
	b, ok := c.bytes[id]
	c.mu.RUnlock()
	if !ok {
		return Checkpoint{}, false
	}
	var cp Checkpoint
	if err := yaml.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, false
	}
	return cp, true
}

// Remove deletes any checkpoint held for id. Removing an absent id is a
// no-op, matching session deletion's cleanup pass.
func (c *CheckpointStore) Remove(id core.SessionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bytes, id)
}
