// Package store provides storage backends for the challenge bot.
//
// It includes an in-memory store used by default and in tests, and SQLite and
// PostgreSQL stores sharing one relational schema. All ledger mutations that
// touch more than one record run inside a single transaction.
package store

import (
	"context"
	"strings"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// Store is the persistence contract used by the bot.
type Store interface {
	DedupRepo

	// EnsureProfile creates the profile if it does not exist yet and reports
	// whether it was created. Existing profiles get their names refreshed.
	EnsureProfile(ctx context.Context, p models.UserProfile) (models.UserProfile, bool, error)
	// GetProfile returns nil without error when the user is unknown.
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	ListProfiles(ctx context.Context) ([]models.UserProfile, error)

	// GetDailyRecord returns nil without error when nothing was logged that day.
	GetDailyRecord(ctx context.Context, userID, day string) (*models.DailyRecord, error)
	MonthSummary(ctx context.Context, userID, month string) (models.MonthSummary, error)
	// AwardChallenge records the answers and credits the points atomically.
	// It returns models.ErrChallengeAlreadyCompleted if the type was already
	// recorded for the day; nothing is written in that case.
	AwardChallenge(ctx context.Context, award models.ChallengeAward) (models.LedgerResult, error)

	SaveMonthlyGoal(ctx context.Context, goal models.MonthlyGoal) error
	GetMonthlyGoal(ctx context.Context, userID, month string) (*models.MonthlyGoal, error)
	UpdateGoalProgress(ctx context.Context, userID, month string, pct int) error
	UpsertLeaderboard(ctx context.Context, entry models.LeaderboardEntry) error
	// PeriodStandings sums each user's daily points for the month, ranked.
	PeriodStandings(ctx context.Context, month string) ([]models.Standing, error)
	// ResetAllPoints zeroes every running total and returns the number of profiles touched.
	ResetAllPoints(ctx context.Context) (int64, error)

	// AddCatalogItem assigns an id when item.ID is empty.
	AddCatalogItem(ctx context.Context, item models.RedeemableItem) (models.RedeemableItem, error)
	// GetCatalogItem returns models.ErrUnknownItem when the id is not in the catalog.
	GetCatalogItem(ctx context.Context, itemID string) (models.RedeemableItem, error)
	ListCatalogItems(ctx context.Context) ([]models.RedeemableItem, error)
	// Redeem validates and applies a redemption atomically.
	Redeem(ctx context.Context, req models.RedeemRequest) (models.RedeemResult, error)

	SaveMood(ctx context.Context, entry models.MoodEntry) error

	SaveFlowState(ctx context.Context, state models.ConversationState) error
	// GetFlowState returns nil without error when no dialogue is open.
	GetFlowState(ctx context.Context, userID string) (*models.ConversationState, error)
	DeleteFlowState(ctx context.Context, userID string) error
	// ListFlowStates returns every open dialogue, oldest update first.
	ListFlowStates(ctx context.Context) ([]models.ConversationState, error)

	Close() error
}

// Opts holds configuration options for Store implementations.
type Opts struct {
	DSN          string // database connection string
	CatalogCache int    // catalog cache size, 0 uses the default
}

// Option defines a configuration option for stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path (or DSN).
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithCatalogCacheSize sets how many catalog items are kept in memory.
func WithCatalogCacheSize(n int) Option {
	return func(o *Opts) { o.CatalogCache = n }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	// key=value form, e.g. "host=localhost user=bot dbname=bot"
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open picks the backend for dsn. An empty dsn returns an InMemoryStore.
func Open(dsn string, opts ...Option) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(append([]Option{WithPostgresDSN(dsn)}, opts...)...)
	}
	return NewSQLiteStore(append([]Option{WithSQLiteDSN(dsn)}, opts...)...)
}
