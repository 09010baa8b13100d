package models

import (
	"sort"
	"time"
)

// Standing is one user's score for a leaderboard period.
type Standing struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Handle      string    `json:"handle,omitempty"`
	Points      int       `json:"points"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Name returns the name shown in announcements.
func (s Standing) Name() string {
	return UserProfile{UserID: s.UserID, DisplayName: s.DisplayName, Handle: s.Handle}.Name()
}

// LeaderboardEntry is the public per-month progress snapshot.
type LeaderboardEntry struct {
	UserID               string    `json:"user_id"`
	Month                string    `json:"month"`
	DisplayName          string    `json:"display_name"`
	CompletionPercentage int       `json:"completion_percentage"`
	Points               int       `json:"points"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// RankStandings orders standings by points descending. Ties go to the user
// whose profile was inserted first, then to the smaller user id.
func RankStandings(in []Standing) []Standing {
	out := make([]Standing, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// SelectWinner returns the top-ranked standing with a positive score.
func SelectWinner(in []Standing) (Standing, bool) {
	ranked := RankStandings(in)
	if len(ranked) == 0 || ranked[0].Points <= 0 {
		return Standing{}, false
	}
	return ranked[0], true
}
