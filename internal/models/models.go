// Package models defines the core data structures for the challenge bot.
//
// It includes user profiles, the points ledger records, the redeemable catalog
// and the transport-neutral event and reply types shared across modules.
package models

import (
	"errors"
	"time"
)

// Ledger and redemption constants
const (
	// ChallengePoints is the fixed award for one completed challenge.
	ChallengePoints = 3
	// RedemptionCooldown is the minimum time between two redemptions by the same user.
	RedemptionCooldown = 7 * 24 * time.Hour
)

// Error variables for guard rejections and validation failures.
var (
	ErrUnknownItem               = errors.New("catalog item not found")
	ErrAlreadyRedeemed           = errors.New("item already redeemed")
	ErrCooldownActive            = errors.New("redemption cooldown active")
	ErrInsufficientPoints        = errors.New("insufficient points")
	ErrChallengeAlreadyCompleted = errors.New("challenge already completed today")
	ErrUnknownChallenge          = errors.New("unknown challenge type")
	ErrInvalidPointCost          = errors.New("point cost must be a whole number of zero or more")
	ErrPermissionDenied          = errors.New("permission denied")
	ErrEmptyUserID               = errors.New("user id cannot be empty")
	ErrServiceStopped            = errors.New("messaging service stopped")
)

// UserProfile is the per-user document holding the running points total.
type UserProfile struct {
	UserID        string       `json:"user_id"`
	DisplayName   string       `json:"display_name"`
	Handle        string       `json:"handle,omitempty"`
	TotalPoints   int          `json:"total_points"`
	RedeemedItems []Redemption `json:"redeemed_items,omitempty"` // in redemption order
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Redemption records one catalog item exchanged for points.
type Redemption struct {
	ItemID      string    `json:"item_id"`
	PointsSpent int       `json:"points_spent"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

// Name returns the best human-readable name for the profile.
func (p UserProfile) Name() string {
	switch {
	case p.Handle != "":
		return "@" + p.Handle
	case p.DisplayName != "":
		return p.DisplayName
	default:
		return p.UserID
	}
}

// HasRedeemed reports whether the item is already in the profile's redeemed list.
func (p UserProfile) HasRedeemed(itemID string) bool {
	for _, r := range p.RedeemedItems {
		if r.ItemID == itemID {
			return true
		}
	}
	return false
}

// LastRedemption returns the most recent redemption timestamp, or the zero time.
func (p UserProfile) LastRedemption() time.Time {
	var last time.Time
	for _, r := range p.RedeemedItems {
		if r.RedeemedAt.After(last) {
			last = r.RedeemedAt
		}
	}
	return last
}

// CheckRedemption applies the redemption guards in order: already redeemed,
// cooldown, then balance. The item must already be known to exist.
func (p UserProfile) CheckRedemption(item RedeemableItem, now time.Time, cooldown time.Duration) error {
	if p.HasRedeemed(item.ID) {
		return ErrAlreadyRedeemed
	}
	if last := p.LastRedemption(); cooldown > 0 && !last.IsZero() && now.Sub(last) < cooldown {
		return ErrCooldownActive
	}
	if p.TotalPoints < item.PointCost {
		return ErrInsufficientPoints
	}
	return nil
}

// DailyRecord holds one user's completed challenges for one UTC day.
type DailyRecord struct {
	UserID      string                       `json:"user_id"`
	Day         string                       `json:"day"` // YYYY-MM-DD
	Points      int                          `json:"points"`
	Challenges  map[string]map[string]string `json:"challenges"`
	LastUpdated time.Time                    `json:"last_updated"`
}

// HasChallenge reports whether the challenge type was already recorded for the day.
func (r *DailyRecord) HasChallenge(challengeID string) bool {
	if r == nil || r.Challenges == nil {
		return false
	}
	_, ok := r.Challenges[challengeID]
	return ok
}

// ChallengeAward is the input of one ledger update.
type ChallengeAward struct {
	UserID      string
	DisplayName string
	Handle      string
	Day         string
	ChallengeID string
	Answers     map[string]string
	Points      int
	At          time.Time
}

// LedgerResult reports the balances after a successful award.
type LedgerResult struct {
	DailyPoints int
	TotalPoints int
}

// MonthlyGoal is a user's declared goal for one month.
type MonthlyGoal struct {
	UserID               string    `json:"user_id"`
	Month                string    `json:"month"` // YYYY-MM
	Goal                 string    `json:"goal"`
	CompletionPercentage int       `json:"completion_percentage"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// MonthSummary aggregates a user's daily records over a month.
type MonthSummary struct {
	ActiveDays int
	Points     int
}

// MoodEntry stores the mood reported for a day.
type MoodEntry struct {
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	Mood       string    `json:"mood"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RedeemRequest is the input of one redemption.
type RedeemRequest struct {
	UserID   string
	ItemID   string
	At       time.Time
	Cooldown time.Duration
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	Item        RedeemableItem
	TotalPoints int
}
