package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/oklog/ulid/v2"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// DefaultCatalogCacheSize is the number of catalog items kept in memory.
const DefaultCatalogCacheSize = 256

// sqlStore implements Store on database/sql. SQLiteStore and PostgresStore
// embed it and differ only in driver, placeholders and row locking.
type sqlStore struct {
	db       *sql.DB
	backend  string // "sqlite3" or "postgres"
	catalog  *lru.Cache
	numbered bool   // $1 placeholders instead of ?
	lock     string // row lock suffix for SELECTs inside ledger transactions
}

func newSQLStore(db *sql.DB, backend string, cacheSize int) (*sqlStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCatalogCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}
	s := &sqlStore{db: db, backend: backend, catalog: cache}
	if backend == "postgres" {
		s.numbered = true
		s.lock = " FOR UPDATE"
	}
	return s, nil
}

// q rewrites ? placeholders for the backend.
func (s *sqlStore) q(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("sqlStore.inTx: rollback failed", "backend", s.backend, "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *sqlStore) insertProfile(ctx context.Context, qx queryer, p models.UserProfile) (bool, error) {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	res, err := qx.ExecContext(ctx, s.q(`
		INSERT INTO profiles (user_id, display_name, handle, total_points, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`),
		p.UserID, p.DisplayName, p.Handle, p.CreatedAt.UTC(), p.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert profile %s: %w", p.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("profile rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) loadProfile(ctx context.Context, qx queryer, userID string, forUpdate bool) (*models.UserProfile, error) {
	query := `SELECT user_id, display_name, handle, total_points, created_at, updated_at FROM profiles WHERE user_id = ?`
	if forUpdate {
		query += s.lock
	}
	var p models.UserProfile
	err := qx.QueryRowContext(ctx, s.q(query), userID).Scan(
		&p.UserID, &p.DisplayName, &p.Handle, &p.TotalPoints, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	rows, err := qx.QueryContext(ctx, s.q(`
		SELECT item_id, points_spent, redeemed_at FROM redemptions
		WHERE user_id = ? ORDER BY redeemed_at, item_id`), userID)
	if err != nil {
		return nil, fmt.Errorf("load redemptions %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var r models.Redemption
		if err := rows.Scan(&r.ItemID, &r.PointsSpent, &r.RedeemedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		p.RedeemedItems = append(p.RedeemedItems, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemptions: %w", err)
	}
	return &p, nil
}

func (s *sqlStore) EnsureProfile(ctx context.Context, p models.UserProfile) (models.UserProfile, bool, error) {
	if p.UserID == "" {
		return models.UserProfile{}, false, models.ErrEmptyUserID
	}
	created, err := s.insertProfile(ctx, s.db, p)
	if err != nil {
		slog.Error("sqlStore.EnsureProfile: insert failed", "backend", s.backend, "userID", p.UserID, "error", err)
		return models.UserProfile{}, false, err
	}
	if !created && (p.DisplayName != "" || p.Handle != "") {
		_, err := s.db.ExecContext(ctx, s.q(`
			UPDATE profiles SET
				display_name = CASE WHEN ? <> '' THEN ? ELSE display_name END,
				handle = CASE WHEN ? <> '' THEN ? ELSE handle END
			WHERE user_id = ?`),
			p.DisplayName, p.DisplayName, p.Handle, p.Handle, p.UserID)
		if err != nil {
			return models.UserProfile{}, false, fmt.Errorf("refresh profile names %s: %w", p.UserID, err)
		}
	}
	stored, err := s.loadProfile(ctx, s.db, p.UserID, false)
	if err != nil {
		return models.UserProfile{}, false, err
	}
	if stored == nil {
		return models.UserProfile{}, false, fmt.Errorf("profile %s vanished after insert", p.UserID)
	}
	if created {
		slog.Debug("sqlStore.EnsureProfile: profile created", "backend", s.backend, "userID", p.UserID)
	}
	return *stored, created, nil
}

func (s *sqlStore) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	return s.loadProfile(ctx, s.db, userID, false)
}

func (s *sqlStore) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, display_name, handle, total_points, created_at, updated_at
		FROM profiles ORDER BY created_at, user_id`)
	if err != nil {
		slog.Error("sqlStore.ListProfiles: query failed", "backend", s.backend, "error", err)
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()
	var out []models.UserProfile
	for rows.Next() {
		var p models.UserProfile
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Handle, &p.TotalPoints, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) loadDaily(ctx context.Context, qx queryer, userID, day string, forUpdate bool) (*models.DailyRecord, error) {
	query := `SELECT user_id, day, points, challenges, last_updated FROM daily_records WHERE user_id = ? AND day = ?`
	if forUpdate {
		query += s.lock
	}
	var r models.DailyRecord
	var challengesJSON string
	err := qx.QueryRowContext(ctx, s.q(query), userID, day).Scan(&r.UserID, &r.Day, &r.Points, &challengesJSON, &r.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load daily record %s/%s: %w", userID, day, err)
	}
	r.Challenges = make(map[string]map[string]string)
	if challengesJSON != "" {
		if err := json.Unmarshal([]byte(challengesJSON), &r.Challenges); err != nil {
			return nil, fmt.Errorf("decode challenges %s/%s: %w", userID, day, err)
		}
	}
	return &r, nil
}

func (s *sqlStore) GetDailyRecord(ctx context.Context, userID, day string) (*models.DailyRecord, error) {
	return s.loadDaily(ctx, s.db, userID, day, false)
}

func (s *sqlStore) MonthSummary(ctx context.Context, userID, month string) (models.MonthSummary, error) {
	var sum models.MonthSummary
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*), COALESCE(SUM(points), 0) FROM daily_records
		WHERE user_id = ? AND day LIKE ?`), userID, month+"-%").Scan(&sum.ActiveDays, &sum.Points)
	if err != nil {
		return models.MonthSummary{}, fmt.Errorf("month summary %s/%s: %w", userID, month, err)
	}
	return sum, nil
}

func (s *sqlStore) AwardChallenge(ctx context.Context, award models.ChallengeAward) (models.LedgerResult, error) {
	if award.UserID == "" {
		return models.LedgerResult{}, models.ErrEmptyUserID
	}
	at := award.At.UTC()
	var result models.LedgerResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.insertProfile(ctx, tx, models.UserProfile{
			UserID: award.UserID, DisplayName: award.DisplayName, Handle: award.Handle, CreatedAt: at,
		}); err != nil {
			return err
		}
		// Lock order: profile, then daily record.
		profile, err := s.loadProfile(ctx, tx, award.UserID, true)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO daily_records (user_id, day, points, challenges, last_updated)
			VALUES (?, ?, 0, '{}', ?)
			ON CONFLICT (user_id, day) DO NOTHING`), award.UserID, award.Day, at); err != nil {
			return fmt.Errorf("insert daily record: %w", err)
		}
		rec, err := s.loadDaily(ctx, tx, award.UserID, award.Day, true)
		if err != nil {
			return err
		}
		if profile == nil || rec == nil {
			return fmt.Errorf("ledger rows missing for %s/%s", award.UserID, award.Day)
		}
		if rec.HasChallenge(award.ChallengeID) {
			return models.ErrChallengeAlreadyCompleted
		}

		rec.Challenges[award.ChallengeID] = award.Answers
		encoded, err := json.Marshal(rec.Challenges)
		if err != nil {
			return fmt.Errorf("encode challenges: %w", err)
		}
		result.DailyPoints = rec.Points + award.Points
		result.TotalPoints = profile.TotalPoints + award.Points

		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE daily_records SET points = ?, challenges = ?, last_updated = ?
			WHERE user_id = ? AND day = ?`),
			result.DailyPoints, string(encoded), at, award.UserID, award.Day); err != nil {
			return fmt.Errorf("update daily record: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE profiles SET total_points = ?, updated_at = ? WHERE user_id = ?`),
			result.TotalPoints, at, award.UserID); err != nil {
			return fmt.Errorf("update profile total: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, models.ErrChallengeAlreadyCompleted) {
			slog.Error("sqlStore.AwardChallenge: transaction failed", "backend", s.backend, "userID", award.UserID, "challenge", award.ChallengeID, "error", err)
		}
		return models.LedgerResult{}, err
	}
	slog.Debug("sqlStore.AwardChallenge: points credited", "backend", s.backend, "userID", award.UserID,
		"challenge", award.ChallengeID, "daily", result.DailyPoints, "total", result.TotalPoints)
	return result, nil
}

func (s *sqlStore) SaveMonthlyGoal(ctx context.Context, goal models.MonthlyGoal) error {
	updated := goal.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monthly_goals (user_id, month, goal, completion_percentage, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET goal = excluded.goal, updated_at = excluded.updated_at`),
		goal.UserID, goal.Month, goal.Goal, goal.CompletionPercentage, updated.UTC())
	if err != nil {
		slog.Error("sqlStore.SaveMonthlyGoal: upsert failed", "backend", s.backend, "userID", goal.UserID, "month", goal.Month, "error", err)
		return fmt.Errorf("save monthly goal: %w", err)
	}
	return nil
}

func (s *sqlStore) GetMonthlyGoal(ctx context.Context, userID, month string) (*models.MonthlyGoal, error) {
	var g models.MonthlyGoal
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT user_id, month, goal, completion_percentage, updated_at
		FROM monthly_goals WHERE user_id = ? AND month = ?`), userID, month).Scan(
		&g.UserID, &g.Month, &g.Goal, &g.CompletionPercentage, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monthly goal: %w", err)
	}
	return &g, nil
}

func (s *sqlStore) UpdateGoalProgress(ctx context.Context, userID, month string, pct int) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO monthly_goals (user_id, month, goal, completion_percentage, updated_at)
		VALUES (?, ?, '', ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET
			completion_percentage = excluded.completion_percentage, updated_at = excluded.updated_at`),
		userID, month, pct, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	return nil
}

func (s *sqlStore) UpsertLeaderboard(ctx context.Context, e models.LeaderboardEntry) error {
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO leaderboard (user_id, month, display_name, completion_percentage, points, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET
			display_name = excluded.display_name,
			completion_percentage = excluded.completion_percentage,
			points = excluded.points,
			updated_at = excluded.updated_at`),
		e.UserID, e.Month, e.DisplayName, e.CompletionPercentage, e.Points, updated.UTC())
	if err != nil {
		return fmt.Errorf("upsert leaderboard: %w", err)
	}
	return nil
}

func (s *sqlStore) PeriodStandings(ctx context.Context, month string) ([]models.Standing, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT p.user_id, p.display_name, p.handle, p.created_at, SUM(d.points)
		FROM profiles p
		JOIN daily_records d ON d.user_id = p.user_id
		WHERE d.day LIKE ?
		GROUP BY p.user_id, p.display_name, p.handle, p.created_at`), month+"-%")
	if err != nil {
		slog.Error("sqlStore.PeriodStandings: query failed", "backend", s.backend, "month", month, "error", err)
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()
	var out []models.Standing
	for rows.Next() {
		var st models.Standing
		if err := rows.Scan(&st.UserID, &st.DisplayName, &st.Handle, &st.JoinedAt, &st.Points); err != nil {
			return nil, fmt.Errorf("failed to scan standing row: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate standing rows: %w", err)
	}
	return models.RankStandings(out), nil
}

func (s *sqlStore) ResetAllPoints(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE profiles SET total_points = 0, updated_at = ?`), time.Now().UTC())
	if err != nil {
		slog.Error("sqlStore.ResetAllPoints: update failed", "backend", s.backend, "error", err)
		return 0, fmt.Errorf("reset points: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqlStore) AddCatalogItem(ctx context.Context, item models.RedeemableItem) (models.RedeemableItem, error) {
	if item.PointCost < 0 {
		return models.RedeemableItem{}, models.ErrInvalidPointCost
	}
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.CreatedAt = item.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO catalog_items (id, title, point_cost, payload_kind, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		item.ID, item.Title, item.PointCost, string(item.PayloadKind), item.Payload, item.CreatedAt)
	if err != nil {
		slog.Error("sqlStore.AddCatalogItem: insert failed", "backend", s.backend, "title", item.Title, "error", err)
		return models.RedeemableItem{}, fmt.Errorf("failed to insert catalog item %q: %w", item.Title, err)
	}
	s.catalog.Add(item.ID, item)
	slog.Debug("sqlStore.AddCatalogItem: item added", "backend", s.backend, "itemID", item.ID, "cost", item.PointCost)
	return item, nil
}

func (s *sqlStore) GetCatalogItem(ctx context.Context, itemID string) (models.RedeemableItem, error) {
	if cached, ok := s.catalog.Get(itemID); ok {
		return cached.(models.RedeemableItem), nil
	}
	var item models.RedeemableItem
	var kind string
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, title, point_cost, payload_kind, payload, created_at
		FROM catalog_items WHERE id = ?`), itemID).Scan(
		&item.ID, &item.Title, &item.PointCost, &kind, &item.Payload, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RedeemableItem{}, models.ErrUnknownItem
	}
	if err != nil {
		return models.RedeemableItem{}, fmt.Errorf("get catalog item %s: %w", itemID, err)
	}
	item.PayloadKind = models.PayloadKind(kind)
	s.catalog.Add(item.ID, item)
	return item, nil
}

func (s *sqlStore) ListCatalogItems(ctx context.Context) ([]models.RedeemableItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, point_cost, payload_kind, payload, created_at
		FROM catalog_items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()
	var out []models.RedeemableItem
	for rows.Next() {
		var item models.RedeemableItem
		var kind string
		if err := rows.Scan(&item.ID, &item.Title, &item.PointCost, &kind, &item.Payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		item.PayloadKind = models.PayloadKind(kind)
		s.catalog.Add(item.ID, item)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog rows: %w", err)
	}
	return out, nil
}

func (s *sqlStore) Redeem(ctx context.Context, req models.RedeemRequest) (models.RedeemResult, error) {
	item, err := s.GetCatalogItem(ctx, req.ItemID)
	if err != nil {
		return models.RedeemResult{}, err
	}
	at := req.At.UTC()
	var total int
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		// Rolled back together with everything else when a guard rejects.
		if _, err := s.insertProfile(ctx, tx, models.UserProfile{UserID: req.UserID, CreatedAt: at}); err != nil {
			return err
		}
		profile, err := s.loadProfile(ctx, tx, req.UserID, true)
		if err != nil {
			return err
		}
		if profile == nil {
			return fmt.Errorf("profile %s missing", req.UserID)
		}
		if err := profile.CheckRedemption(item, at, req.Cooldown); err != nil {
			return err
		}
		total = profile.TotalPoints - item.PointCost
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE profiles SET total_points = ?, updated_at = ? WHERE user_id = ?`),
			total, at, req.UserID); err != nil {
			return fmt.Errorf("debit profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO redemptions (user_id, item_id, points_spent, redeemed_at) VALUES (?, ?, ?, ?)`),
			req.UserID, item.ID, item.PointCost, at); err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Debug("sqlStore.Redeem: rejected", "backend", s.backend, "userID", req.UserID, "itemID", req.ItemID, "error", err)
		return models.RedeemResult{}, err
	}
	slog.Debug("sqlStore.Redeem: item redeemed", "backend", s.backend, "userID", req.UserID, "itemID", item.ID, "total", total)
	return models.RedeemResult{Item: item, TotalPoints: total}, nil
}

func (s *sqlStore) SaveMood(ctx context.Context, m models.MoodEntry) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO mood_journal (user_id, day, mood, recorded_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, day) DO UPDATE SET mood = excluded.mood, recorded_at = excluded.recorded_at`),
		m.UserID, m.Day, m.Mood, m.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("save mood: %w", err)
	}
	return nil
}

// SaveFlowState stores or replaces the open dialogue for a user.
func (s *sqlStore) SaveFlowState(ctx context.Context, st models.ConversationState) error {
	if st.UserID == "" {
		return models.ErrEmptyUserID
	}
	var answersJSON string
	if len(st.Answers) > 0 {
		b, err := json.Marshal(st.Answers)
		if err != nil {
			slog.Error("sqlStore.SaveFlowState: JSON marshal failed", "error", err, "userID", st.UserID)
			return err
		}
		answersJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO flow_states (user_id, chat_id, flow, step, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			chat_id = excluded.chat_id, flow = excluded.flow, step = excluded.step,
			state_data = excluded.state_data, created_at = excluded.created_at, updated_at = excluded.updated_at`),
		st.UserID, st.ChatID, string(st.Flow), st.Step, answersJSON, st.CreatedAt.UTC(), st.UpdatedAt.UTC())
	if err != nil {
		slog.Error("sqlStore.SaveFlowState: upsert failed", "backend", s.backend, "error", err, "userID", st.UserID, "flow", st.Flow)
		return err
	}
	return nil
}

const flowStateColumns = `user_id, chat_id, flow, step, state_data, created_at, updated_at`

func scanFlowState(row interface{ Scan(...any) error }) (models.ConversationState, error) {
	var st models.ConversationState
	var flow, answersJSON string
	if err := row.Scan(&st.UserID, &st.ChatID, &flow, &st.Step, &answersJSON, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return st, err
	}
	st.Flow = models.FlowKind(flow)
	st.Answers = make(map[string]string)
	if answersJSON != "" {
		if err := json.Unmarshal([]byte(answersJSON), &st.Answers); err != nil {
			// Continue with empty answers rather than failing the dialogue.
			slog.Error("sqlStore.scanFlowState: JSON unmarshal failed", "error", err, "userID", st.UserID)
			st.Answers = make(map[string]string)
		}
	}
	return st, nil
}

// GetFlowState retrieves the open dialogue for a user.
func (s *sqlStore) GetFlowState(ctx context.Context, userID string) (*models.ConversationState, error) {
	st, err := scanFlowState(s.db.QueryRowContext(ctx, s.q(`SELECT `+flowStateColumns+` FROM flow_states WHERE user_id = ?`), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("sqlStore.GetFlowState: query failed", "backend", s.backend, "error", err, "userID", userID)
		return nil, err
	}
	return &st, nil
}

// ListFlowStates returns every open dialogue, oldest update first.
func (s *sqlStore) ListFlowStates(ctx context.Context) ([]models.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+flowStateColumns+` FROM flow_states ORDER BY updated_at, user_id`))
	if err != nil {
		slog.Error("sqlStore.ListFlowStates: query failed", "backend", s.backend, "error", err)
		return nil, err
	}
	defer rows.Close()
	var out []models.ConversationState
	for rows.Next() {
		st, err := scanFlowState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// DeleteFlowState removes the open dialogue for a user.
func (s *sqlStore) DeleteFlowState(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM flow_states WHERE user_id = ?`), userID); err != nil {
		slog.Error("sqlStore.DeleteFlowState: delete failed", "backend", s.backend, "error", err, "userID", userID)
		return err
	}
	return nil
}

func (s *sqlStore) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT message_id FROM inbound_dedup WHERE message_id = ?`), messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordInbound(ctx context.Context, messageID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO inbound_dedup (message_id, user_id, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`),
		messageID, userID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`),
		time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("sqlStore.Close: closing database connection", "backend", s.backend)
	err := s.db.Close()
	if err != nil {
		slog.Error("sqlStore.Close: close failed", "backend", s.backend, "error", err)
	}
	return err
}
