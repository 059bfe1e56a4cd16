// Package store keeps the active and completed session registries.
package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/commonground/newscrawler/internal/crawl"
)

// Registry errors.
var (
	ErrNotFound      = errors.New("session not found")
	ErrSessionExists = errors.New("session already active")
	ErrSessionActive = errors.New("session is still active")
)

// SessionStore tracks sessions across their lifecycle. A session lives in
// the active registry while running and moves to the completed registry in a
// single locked step, so there is never a window in which its id is absent
// from both.
type SessionStore struct {
	mu        sync.RWMutex
	active    map[string]*crawl.Session
	completed map[string]*crawl.Session
}

// New creates an empty SessionStore.
func New() *SessionStore {
	return &SessionStore{
		active:    make(map[string]*crawl.Session),
		completed: make(map[string]*crawl.Session),
	}
}

// Put registers a new active session. A duplicate active id is rejected with
// ErrSessionExists; a completed session with the same id is also rejected,
// since sessions are never resumed.
func (s *SessionStore) Put(sess *crawl.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sess.ID()
	if _, ok := s.active[id]; ok {
		return ErrSessionExists
	}
	if _, ok := s.completed[id]; ok {
		return ErrSessionExists
	}
	s.active[id] = sess
	return nil
}

// Get returns the session for id, searching active then completed.
func (s *SessionStore) Get(id string) (*crawl.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.active[id]; ok {
		return sess, nil
	}
	if sess, ok := s.completed[id]; ok {
		return sess, nil
	}
	return nil, ErrNotFound
}

// MoveToCompleted transfers id from the active to the completed registry.
func (s *SessionStore) MoveToCompleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.active, id)
	s.completed[id] = sess
	return nil
}

// Remove drops an active session that never ran, typically because its
// work item was rejected. Unknown ids are ignored.
func (s *SessionStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Delete removes a completed session. Active sessions cannot be deleted.
func (s *SessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		return ErrSessionActive
	}
	if _, ok := s.completed[id]; !ok {
		return ErrNotFound
	}
	delete(s.completed, id)
	return nil
}

// ActiveIDs returns the ids of all running sessions, sorted.
func (s *SessionStore) ActiveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllIDs returns every known session id in descending lexical order, the
// order the listing endpoint serves.
func (s *SessionStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.active)+len(s.completed))
	for id := range s.active {
		ids = append(ids, id)
	}
	for id := range s.completed {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids
}

// CompletedCount reports how many sessions have finished.
func (s *SessionStore) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.completed)
}
