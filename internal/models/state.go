// Package models defines state management structures for conversation flows.
package models

import "time"

// FlowKind identifies which dialogue a user is in. Challenge flows use the
// challenge type id as their kind.
type FlowKind string

const (
	// FlowAdminAddItem collects a new catalog item from the admin.
	FlowAdminAddItem FlowKind = "admin_add_book"
	// FlowMonthlyGoal collects the goal for the current month.
	FlowMonthlyGoal FlowKind = "set_monthly_goal"
)

// ChallengeFlow returns the flow kind for a challenge type id.
func ChallengeFlow(challengeID string) FlowKind {
	return FlowKind(challengeID)
}

// ConversationState is an open multi-step dialogue for one user.
type ConversationState struct {
	UserID    string            `json:"user_id"`
	ChatID    string            `json:"chat_id"`
	Flow      FlowKind          `json:"flow"`
	Step      int               `json:"step"` // 1-based
	Answers   map[string]string `json:"answers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Clone returns a copy that does not share the answers map.
func (s ConversationState) Clone() ConversationState {
	out := s
	if s.Answers != nil {
		out.Answers = make(map[string]string, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	return out
}
