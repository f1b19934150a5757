// Package session keeps per-caller conversation state for the text demos.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/promptlab/internal/domain"
)

// Store maps an opaque session id to its conversation state.
//
// Get never fails for an unseen id: it returns a fresh empty state and does
// not record it. Save replaces the stored state entirely.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.SessionState, error)
	Save(ctx context.Context, sessionID string, state *domain.SessionState) error
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// MemoryStore is a process-local Store. States are copied on the way in and
// out so callers never share a history slice with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.SessionState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.SessionState)}
}

// Get returns a copy of the stored state, or an empty state for unseen ids.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.SessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.sessions[sessionID]; ok {
		return st.Clone(), nil
	}
	return &domain.SessionState{SessionID: sessionID}, nil
}

// Save stores a copy of state under sessionID.
func (s *MemoryStore) Save(_ context.Context, sessionID string, state *domain.SessionState) error {
	st := state.Clone()
	if st == nil {
		st = &domain.SessionState{}
	}
	st.SessionID = sessionID
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	s.sessions[sessionID] = st
	s.mu.Unlock()
	return nil
}

// Delete removes a session and reports whether it existed.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false, nil
	}
	delete(s.sessions, sessionID)
	return true, nil
}

// Count returns the number of stored sessions.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
