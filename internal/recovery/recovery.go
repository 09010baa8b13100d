// Package recovery restores in-flight work after a restart. Components
// register themselves with a RecoveryManager, which runs them once at startup.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context, registry *RecoveryRegistry) error
}

// DialogueLister is the part of store.Store that lists open dialogues.
type DialogueLister interface {
	ListFlowStates(ctx context.Context) ([]models.ConversationState, error)
}

// DialogueRecoveryFunc resumes one open dialogue, typically by asking its
// pending question again.
type DialogueRecoveryFunc func(ctx context.Context, st models.ConversationState) error

// RecoveryRegistry provides services that components can use during recovery
type RecoveryRegistry struct {
	store           DialogueLister
	dialogueRecover DialogueRecoveryFunc
}

// NewRecoveryRegistry creates a new recovery registry
func NewRecoveryRegistry(store DialogueLister) *RecoveryRegistry {
	return &RecoveryRegistry{store: store}
}

// RegisterDialogueRecovery registers the callback used to resume dialogues
func (r *RecoveryRegistry) RegisterDialogueRecovery(fn DialogueRecoveryFunc) {
	r.dialogueRecover = fn
}

// RecoverDialogue requests recovery of one open dialogue
func (r *RecoveryRegistry) RecoverDialogue(ctx context.Context, st models.ConversationState) error {
	if r.dialogueRecover == nil {
		return fmt.Errorf("no dialogue recovery handler registered")
	}
	return r.dialogueRecover(ctx, st)
}

// GetStore provides access to the store for recovery operations
func (r *RecoveryRegistry) GetStore() DialogueLister {
	return r.store
}

// RecoveryManager orchestrates recovery of all registered components
type RecoveryManager struct {
	registry     *RecoveryRegistry
	recoverables []Recoverable
}

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager(store DialogueLister) *RecoveryManager {
	return &RecoveryManager{registry: NewRecoveryRegistry(store)}
}

// RegisterRecoverable adds a component that can be recovered
func (rm *RecoveryManager) RegisterRecoverable(r Recoverable) {
	rm.recoverables = append(rm.recoverables, r)
}

// RegisterDialogueRecovery registers the dialogue recovery infrastructure
func (rm *RecoveryManager) RegisterDialogueRecovery(fn DialogueRecoveryFunc) {
	rm.registry.RegisterDialogueRecovery(fn)
}

// RecoverAll performs recovery of all registered components
func (rm *RecoveryManager) RecoverAll(ctx context.Context) error {
	slog.Info("RecoveryManager.RecoverAll: starting", "components", len(rm.recoverables))

	recoveredCount := 0
	errorCount := 0
	for _, recoverable := range rm.recoverables {
		if err := recoverable.RecoverState(ctx, rm.registry); err != nil {
			slog.Error("RecoveryManager.RecoverAll: component failed", "error", err, "component", fmt.Sprintf("%T", recoverable))
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("RecoveryManager.RecoverAll: completed", "recovered", recoveredCount, "errors", errorCount)
	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(rm.recoverables))
	}
	return nil
}

// GetRegistry provides access to the recovery registry for infrastructure setup
func (rm *RecoveryManager) GetRegistry() *RecoveryRegistry {
	return rm.registry
}
