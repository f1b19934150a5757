// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/promptlab/internal/domain"
)

// ChainRepository persists decision chains together with their steps.
type ChainRepository interface {
	// SaveChain upserts the chain and each of its steps atomically and
	// returns the chain id.
	SaveChain(ctx context.Context, chain *domain.DecisionChain) (string, error)

	// GetChain returns the chain with steps ordered by step number, or nil
	// when it does not exist.
	GetChain(ctx context.Context, chainID string) (*domain.DecisionChain, error)

	// RecentChains returns up to limit chains, newest first.
	RecentChains(ctx context.Context, limit int) ([]*domain.DecisionChain, error)

	// DeleteChain removes the chain and its steps and reports whether it existed.
	DeleteChain(ctx context.Context, chainID string) (bool, error)
}

// SessionRepository persists conversation state per demo namespace.
type SessionRepository interface {
	// GetSession returns the stored state, or nil when none exists.
	GetSession(ctx context.Context, namespace, sessionID string) (*domain.SessionState, error)

	// SaveSession replaces the stored state.
	SaveSession(ctx context.Context, namespace string, state *domain.SessionState) error

	// DeleteSession removes the state and reports whether it existed.
	DeleteSession(ctx context.Context, namespace, sessionID string) (bool, error)
}

// Repository is the full persistence surface used by the server.
type Repository interface {
	ChainRepository
	SessionRepository

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Sessions adapts a SessionRepository to a single namespace so it can back a
// demo's session store.
type Sessions struct {
	repo      SessionRepository
	namespace string
}

// NewSessions scopes repo to namespace.
func NewSessions(repo SessionRepository, namespace string) *Sessions {
	return &Sessions{repo: repo, namespace: namespace}
}

// Get returns the stored state or a fresh empty one. Unseen ids are not
// written.
func (s *Sessions) Get(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	st, err := s.repo.GetSession(ctx, s.namespace, sessionID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return &domain.SessionState{SessionID: sessionID}, nil
	}
	return st, nil
}

// Save replaces the stored state for sessionID.
func (s *Sessions) Save(ctx context.Context, sessionID string, state *domain.SessionState) error {
	st := state.Clone()
	if st == nil {
		st = &domain.SessionState{}
	}
	st.SessionID = sessionID
	return s.repo.SaveSession(ctx, s.namespace, st)
}

// Delete removes sessionID.
func (s *Sessions) Delete(ctx context.Context, sessionID string) (bool, error) {
	return s.repo.DeleteSession(ctx, s.namespace, sessionID)
}
