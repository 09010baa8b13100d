package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// OpenDialogues is a Recoverable that hands every persisted dialogue to the
// registered dialogue recovery callback.
type OpenDialogues struct{}

// RecoverState resumes each open dialogue; one failure does not stop the others.
func (OpenDialogues) RecoverState(ctx context.Context, registry *RecoveryRegistry) error {
	states, err := registry.GetStore().ListFlowStates(ctx)
	if err != nil {
		return fmt.Errorf("list open dialogues: %w", err)
	}
	failed := 0
	for _, st := range states {
		if err := registry.RecoverDialogue(ctx, st); err != nil {
			slog.Warn("OpenDialogues.RecoverState: dialogue not resumed", "userID", st.UserID, "flow", st.Flow, "error", err)
			failed++
		}
	}
	slog.Info("OpenDialogues.RecoverState: done", "dialogues", len(states), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d dialogues not resumed", failed, len(states))
	}
	return nil
}
