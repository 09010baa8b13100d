package flow

import (
	"context"
	"log/slog"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// FlowStateStore is the part of store.Store that persists dialogues.
type FlowStateStore interface {
	SaveFlowState(ctx context.Context, state models.ConversationState) error
	GetFlowState(ctx context.Context, userID string) (*models.ConversationState, error)
	DeleteFlowState(ctx context.Context, userID string) error
}

// StoreBasedSessionStore implements SessionStore on the flow_states table so
// open dialogues survive a restart.
type StoreBasedSessionStore struct {
	store FlowStateStore
}

// NewStoreBasedSessionStore creates a new SessionStore backed by a Store.
func NewStoreBasedSessionStore(st FlowStateStore) *StoreBasedSessionStore {
	slog.Debug("Creating StoreBasedSessionStore")
	return &StoreBasedSessionStore{store: st}
}

// Get retrieves the open dialogue for a user.
func (sm *StoreBasedSessionStore) Get(ctx context.Context, userID string) (*models.ConversationState, error) {
	st, err := sm.store.GetFlowState(ctx, userID)
	if err != nil {
		slog.Error("StoreBasedSessionStore.Get: load failed", "error", err, "userID", userID)
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	slog.Debug("StoreBasedSessionStore.Get: found", "userID", userID, "flow", st.Flow, "step", st.Step)
	return st, nil
}

// Put stores the dialogue, replacing any previous one.
func (sm *StoreBasedSessionStore) Put(ctx context.Context, state models.ConversationState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	if err := sm.store.SaveFlowState(ctx, state); err != nil {
		slog.Error("StoreBasedSessionStore.Put: save failed", "error", err, "userID", state.UserID, "flow", state.Flow)
		return err
	}
	slog.Debug("StoreBasedSessionStore.Put: saved", "userID", state.UserID, "flow", state.Flow, "step", state.Step)
	return nil
}

// Delete removes the user's dialogue.
func (sm *StoreBasedSessionStore) Delete(ctx context.Context, userID string) error {
	if err := sm.store.DeleteFlowState(ctx, userID); err != nil {
		slog.Error("StoreBasedSessionStore.Delete: delete failed", "error", err, "userID", userID)
		return err
	}
	return nil
}
