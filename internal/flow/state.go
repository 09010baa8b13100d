// Package flow defines the session stores and the state machine behind the
// bot's multi-step dialogues.
package flow

import (
	"context"
	"sync"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// SessionStore holds at most one open dialogue per user.
type SessionStore interface {
	// Get returns nil without error when the user has no open dialogue.
	Get(ctx context.Context, userID string) (*models.ConversationState, error)
	// Put creates or replaces the user's dialogue.
	Put(ctx context.Context, state models.ConversationState) error
	// Delete removes the user's dialogue; deleting a missing one is not an error.
	Delete(ctx context.Context, userID string) error
}

// MemorySessionStore keeps dialogues in process memory. Open dialogues are
// lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.ConversationState
}

// NewMemorySessionStore creates an empty MemorySessionStore.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]models.ConversationState)}
}

func (m *MemorySessionStore) Get(ctx context.Context, userID string) (*models.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	out := st.Clone()
	return &out, nil
}

func (m *MemorySessionStore) Put(ctx context.Context, state models.ConversationState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.UserID] = state.Clone()
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}
