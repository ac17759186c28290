// Package store implements the SessionStore: an in-memory index of
// SessionRecords keyed by id, with by-owner and by-touch secondary
// views. Grounded on the teacher's session manager — AddWithID,
// ReplaceSession, Get-updates-touched-at, and a background cleanup
// sweep — generalized from its single proxy-session registry to the
// core's {by-owner, by-LRU} view requirements.
package store

import (
	"sync"
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
	"github.com/ruleforge/ruleforge/pkg/rferrors"
)

// Store is the SessionStore. All mutations are serialized by a single
// lock; reads may proceed concurrently with each other but not with a
// mutation.
type Store struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*core.SessionRecord
	byOwner  map[string]map[core.SessionID]struct{}
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[core.SessionID]*core.SessionRecord),
		byOwner:  make(map[string]map[core.SessionID]struct{}),
	}
}

// Create inserts a freshly built record. It is an error to create a
// record whose id already exists (ids are minted by core.NewSessionID
// and collisions would indicate a programming error upstream).
func (s *Store) Create(rec *core.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[rec.ID]; exists {
		return rferrors.NewInternal("session id already exists in store", nil)
	}
	s.sessions[rec.ID] = rec
	s.indexOwnerLocked(rec)
	return nil
}

func (s *Store) indexOwnerLocked(rec *core.SessionRecord) {
	set, ok := s.byOwner[rec.Owner]
	if !ok {
		set = make(map[core.SessionID]struct{})
		s.byOwner[rec.Owner] = set
	}
	set[rec.ID] = struct{}{}
}

// Get returns the record for id, or (nil, false) if absent. Unlike a
// plain lookup, Get does not itself update touched-at: touch happens at
// job admission and completion, which is the scheduler's job, not the
// store's, since only the session's own worker may mutate the record.
func (s *Store) Get(id core.SessionID) (*core.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	return rec, ok
}

// List returns all records, unordered.
func (s *Store) List() []*core.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	return out
}

// ListByOwner returns the records owned by owner, unordered.
func (s *Store) ListByOwner(owner string) []*core.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOwner[owner]
	out := make([]*core.SessionRecord, 0, len(ids))
	for id := range ids {
		if rec, ok := s.sessions[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// CountActiveByOwner reports how many of owner's sessions are not yet
// Terminated, for per-user admission caps.
func (s *Store) CountActiveByOwner(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id := range s.byOwner[owner] {
		if rec, ok := s.sessions[id]; ok && isActiveStatus(rec.Status) {
			n++
		}
	}
	return n
}

// CountActive reports the global count of non-terminal sessions.
func (s *Store) CountActive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.sessions {
		if isActiveStatus(rec.Status) {
			n++
		}
	}
	return n
}

func isActiveStatus(status core.SessionStatus) bool {
	switch status {
	case core.StatusTerminated:
		return false
	default:
		return true
	}
}

// Remove deletes id from the store and its owner index. Removing an
// absent id is a no-op, matching DELETE's documented idempotence.
func (s *Store) Remove(id core.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	if set, ok := s.byOwner[rec.Owner]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byOwner, rec.Owner)
		}
	}
}

// OldestIdleNotEvaluating returns the candidate session with the oldest
// touched-at among records matching the predicate and not currently
// Evaluating, for the eviction policy's LRU selection. It returns
// (nil, false) if no candidate qualifies.
func (s *Store) OldestIdleNotEvaluating(match func(*core.SessionRecord) bool) (*core.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *core.SessionRecord
	for _, rec := range s.sessions {
		if rec.Status == core.StatusEvaluating {
			continue
		}
		if !match(rec) {
			continue
		}
		if oldest == nil || rec.TouchedAt.Before(oldest.TouchedAt) {
			oldest = rec
		}
	}
	return oldest, oldest != nil
}

// IdleLongerThan returns every session whose status is Idle and whose
// touched-at is older than the cutoff, for the idle-timeout sweep.
func (s *Store) IdleLongerThan(cutoff time.Time) []*core.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.SessionRecord
	for _, rec := range s.sessions {
		if rec.Status == core.StatusIdle && rec.TouchedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}
