// Package store holds the per-context session cache. Sessions are
// best-effort state: the table starts empty on every coordinator restart
// and nothing here is a source of truth.
package store

import (
	"sync"
	"time"

	"github.com/credlens/coordinator/internal/bus"
	"github.com/credlens/coordinator/pkg/models"
)

// Store owns all Session state. Mutation goes through the dispatcher
// only; callers never see raw map access or locks.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	notifier *bus.Bus
}

// New creates an empty store publishing change events on notifier
func New(notifier *bus.Bus) *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		notifier: notifier,
	}
}

// Create materializes the session for a context on first submission.
// Existing sessions are left untouched.
func (s *Store) Create(contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[contextID]; ok {
		return
	}

	now := time.Now()
	s.sessions[contextID] = &models.Session{
		ContextID:    contextID,
		MediaResults: make(map[string]*models.MediaResult),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// UpsertText writes the text result for a context, last write wins.
// A missing session means the context was torn down while the call was
// in flight; the result is discarded and false returned.
func (s *Store) UpsertText(contextID string, result *models.TextResult) bool {
	s.mu.Lock()
	session, ok := s.sessions[contextID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	now := time.Now()
	result.UpdatedAt = now
	session.TextResult = result
	session.UpdatedAt = now
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		ContextID: contextID,
		Kind:      models.EventSessionUpdated,
		Payload:   map[string]string{"contextId": contextID, "kind": "text"},
	})
	return true
}

// UpsertMedia writes one media item's result. Backward lifecycle
// transitions (a terminal item moving back to queued or in_flight) are
// ignored; each item is independent of every other item.
func (s *Store) UpsertMedia(contextID string, result *models.MediaResult) bool {
	s.mu.Lock()
	session, ok := s.sessions[contextID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	if existing, ok := session.MediaResults[result.ItemID]; ok {
		if result.State.Precedes(existing.State) {
			s.mu.Unlock()
			return false
		}
	}

	now := time.Now()
	result.UpdatedAt = now
	session.MediaResults[result.ItemID] = result
	session.UpdatedAt = now
	s.mu.Unlock()

	s.notifier.Publish(bus.Event{
		ContextID: contextID,
		Kind:      models.EventSessionUpdated,
		Payload:   map[string]string{"contextId": contextID, "kind": "media"},
	})
	return true
}

// Get returns a copy of the session, or nil when the context is unknown
func (s *Store) Get(contextID string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[contextID]
	if !ok {
		return nil
	}
	return copySession(session)
}

// Remove drops a context's session. Idempotent: removing an unknown
// context is a no-op.
func (s *Store) Remove(contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, contextID)
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// copySession clones a session so callers can't mutate store state
func copySession(session *models.Session) *models.Session {
	out := &models.Session{
		ContextID:    session.ContextID,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
		MediaResults: make(map[string]*models.MediaResult, len(session.MediaResults)),
	}
	if session.TextResult != nil {
		tr := *session.TextResult
		out.TextResult = &tr
	}
	for id, mr := range session.MediaResults {
		clone := *mr
		out.MediaResults[id] = &clone
	}
	return out
}
