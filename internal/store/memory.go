package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// InMemoryStore keeps everything in process memory. It is the default when no
// database DSN is configured and the backing store for tests.
type InMemoryStore struct {
	mu          sync.Mutex
	profiles    map[string]*models.UserProfile
	daily       map[string]*models.DailyRecord // key: userID|day
	goals       map[string]models.MonthlyGoal  // key: userID|month
	leaderboard map[string]models.LeaderboardEntry
	catalog     map[string]models.RedeemableItem
	moods       map[string]models.MoodEntry
	flows       map[string]models.ConversationState
	dedup       map[string]*DedupRecord
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		profiles:    make(map[string]*models.UserProfile),
		daily:       make(map[string]*models.DailyRecord),
		goals:       make(map[string]models.MonthlyGoal),
		leaderboard: make(map[string]models.LeaderboardEntry),
		catalog:     make(map[string]models.RedeemableItem),
		moods:       make(map[string]models.MoodEntry),
		flows:       make(map[string]models.ConversationState),
		dedup:       make(map[string]*DedupRecord),
	}
}

func key(parts ...string) string {
	return strings.Join(parts, "|")
}

func copyProfile(p *models.UserProfile) models.UserProfile {
	out := *p
	out.RedeemedItems = append([]models.Redemption(nil), p.RedeemedItems...)
	return out
}

func copyDaily(r *models.DailyRecord) models.DailyRecord {
	out := *r
	out.Challenges = make(map[string]map[string]string, len(r.Challenges))
	for id, answers := range r.Challenges {
		inner := make(map[string]string, len(answers))
		for k, v := range answers {
			inner[k] = v
		}
		out.Challenges[id] = inner
	}
	return out
}

// ensureProfileLocked must be called with s.mu held.
func (s *InMemoryStore) ensureProfileLocked(p models.UserProfile) (*models.UserProfile, bool) {
	if existing, ok := s.profiles[p.UserID]; ok {
		if p.DisplayName != "" {
			existing.DisplayName = p.DisplayName
		}
		if p.Handle != "" {
			existing.Handle = p.Handle
		}
		return existing, false
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	p.TotalPoints = 0
	p.RedeemedItems = nil
	s.profiles[p.UserID] = &p
	return &p, true
}

func (s *InMemoryStore) EnsureProfile(ctx context.Context, p models.UserProfile) (models.UserProfile, bool, error) {
	if p.UserID == "" {
		return models.UserProfile{}, false, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, created := s.ensureProfileLocked(p)
	if created {
		slog.Debug("InMemoryStore.EnsureProfile: profile created", "userID", p.UserID)
	}
	return copyProfile(stored), created, nil
}

func (s *InMemoryStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	out := copyProfile(p)
	return &out, nil
}

func (s *InMemoryStore) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, copyProfile(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *InMemoryStore) GetDailyRecord(ctx context.Context, userID, day string) (*models.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.daily[key(userID, day)]
	if !ok {
		return nil, nil
	}
	out := copyDaily(r)
	return &out, nil
}

func (s *InMemoryStore) MonthSummary(ctx context.Context, userID, month string) (models.MonthSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum models.MonthSummary
	for _, r := range s.daily {
		if r.UserID == userID && strings.HasPrefix(r.Day, month+"-") {
			sum.ActiveDays++
			sum.Points += r.Points
		}
	}
	return sum, nil
}

func (s *InMemoryStore) AwardChallenge(ctx context.Context, award models.ChallengeAward) (models.LedgerResult, error) {
	if award.UserID == "" {
		return models.LedgerResult{}, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(award.UserID, award.Day)
	rec, ok := s.daily[k]
	if ok && rec.HasChallenge(award.ChallengeID) {
		return models.LedgerResult{}, models.ErrChallengeAlreadyCompleted
	}
	profile, _ := s.ensureProfileLocked(models.UserProfile{
		UserID: award.UserID, DisplayName: award.DisplayName, Handle: award.Handle, CreatedAt: award.At,
	})
	if !ok {
		rec = &models.DailyRecord{UserID: award.UserID, Day: award.Day, Challenges: map[string]map[string]string{}}
		s.daily[k] = rec
	}
	answers := make(map[string]string, len(award.Answers))
	for f, v := range award.Answers {
		answers[f] = v
	}
	rec.Challenges[award.ChallengeID] = answers
	rec.Points += award.Points
	rec.LastUpdated = award.At
	profile.TotalPoints += award.Points
	profile.UpdatedAt = award.At

	return models.LedgerResult{DailyPoints: rec.Points, TotalPoints: profile.TotalPoints}, nil
}

func (s *InMemoryStore) SaveMonthlyGoal(ctx context.Context, goal models.MonthlyGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(goal.UserID, goal.Month)
	if existing, ok := s.goals[k]; ok && goal.CompletionPercentage == 0 {
		goal.CompletionPercentage = existing.CompletionPercentage
	}
	s.goals[k] = goal
	return nil
}

func (s *InMemoryStore) GetMonthlyGoal(ctx context.Context, userID, month string) (*models.MonthlyGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[key(userID, month)]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *InMemoryStore) UpdateGoalProgress(ctx context.Context, userID, month string, pct int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, month)
	g := s.goals[k]
	g.UserID, g.Month = userID, month
	g.CompletionPercentage = pct
	g.UpdatedAt = time.Now().UTC()
	s.goals[k] = g
	return nil
}

func (s *InMemoryStore) UpsertLeaderboard(ctx context.Context, entry models.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboard[key(entry.UserID, entry.Month)] = entry
	return nil
}

func (s *InMemoryStore) PeriodStandings(ctx context.Context, month string) ([]models.Standing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser := make(map[string]*models.Standing)
	for _, r := range s.daily {
		if !strings.HasPrefix(r.Day, month+"-") {
			continue
		}
		st, ok := byUser[r.UserID]
		if !ok {
			st = &models.Standing{UserID: r.UserID}
			if p, ok := s.profiles[r.UserID]; ok {
				st.DisplayName, st.Handle, st.JoinedAt = p.DisplayName, p.Handle, p.CreatedAt
			}
			byUser[r.UserID] = st
		}
		st.Points += r.Points
	}
	out := make([]models.Standing, 0, len(byUser))
	for _, st := range byUser {
		out = append(out, *st)
	}
	return models.RankStandings(out), nil
}

func (s *InMemoryStore) ResetAllPoints(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range s.profiles {
		p.TotalPoints = 0
		p.UpdatedAt = now
	}
	return int64(len(s.profiles)), nil
}

func (s *InMemoryStore) AddCatalogItem(ctx context.Context, item models.RedeemableItem) (models.RedeemableItem, error) {
	if item.PointCost < 0 {
		return models.RedeemableItem{}, models.ErrInvalidPointCost
	}
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog[item.ID] = item
	return item, nil
}

func (s *InMemoryStore) GetCatalogItem(ctx context.Context, itemID string) (models.RedeemableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.catalog[itemID]
	if !ok {
		return models.RedeemableItem{}, models.ErrUnknownItem
	}
	return item, nil
}

func (s *InMemoryStore) ListCatalogItems(ctx context.Context) ([]models.RedeemableItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RedeemableItem, 0, len(s.catalog))
	for _, item := range s.catalog {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) Redeem(ctx context.Context, req models.RedeemRequest) (models.RedeemResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.catalog[req.ItemID]
	if !ok {
		return models.RedeemResult{}, models.ErrUnknownItem
	}
	p, ok := s.profiles[req.UserID]
	if !ok {
		// An unknown user has no points; run the guards on an empty profile.
		p = &models.UserProfile{UserID: req.UserID}
	}
	if err := p.CheckRedemption(item, req.At, req.Cooldown); err != nil {
		return models.RedeemResult{}, err
	}
	if !ok {
		p, _ = s.ensureProfileLocked(models.UserProfile{UserID: req.UserID, CreatedAt: req.At})
	}
	p.TotalPoints -= item.PointCost
	p.RedeemedItems = append(p.RedeemedItems, models.Redemption{ItemID: item.ID, PointsSpent: item.PointCost, RedeemedAt: req.At})
	p.UpdatedAt = req.At
	return models.RedeemResult{Item: item, TotalPoints: p.TotalPoints}, nil
}

func (s *InMemoryStore) SaveMood(ctx context.Context, entry models.MoodEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moods[key(entry.UserID, entry.Day)] = entry
	return nil
}

// Mood returns the recorded mood for a day; used by tests.
func (s *InMemoryStore) Mood(userID, day string) (models.MoodEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.moods[key(userID, day)]
	return m, ok
}

// LeaderboardEntry returns a stored snapshot; used by tests.
func (s *InMemoryStore) LeaderboardEntry(userID, month string) (models.LeaderboardEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.leaderboard[key(userID, month)]
	return e, ok
}

func (s *InMemoryStore) SaveFlowState(ctx context.Context, state models.ConversationState) error {
	if state.UserID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[state.UserID] = state.Clone()
	return nil
}

func (s *InMemoryStore) GetFlowState(ctx context.Context, userID string) (*models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.flows[userID]
	if !ok {
		return nil, nil
	}
	out := st.Clone()
	return &out, nil
}

func (s *InMemoryStore) ListFlowStates(ctx context.Context) ([]models.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationState, 0, len(s.flows))
	for _, st := range s.flows {
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *InMemoryStore) DeleteFlowState(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, userID)
	return nil
}

func (s *InMemoryStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dedup[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = &DedupRecord{MessageID: messageID, UserID: userID, ReceivedAt: time.Now().UTC()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.dedup[messageID]; ok {
		now := time.Now().UTC()
		rec.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
