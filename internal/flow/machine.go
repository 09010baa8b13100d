package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// Ledger is the part of store.Store the dialogues write to.
type Ledger interface {
	GetDailyRecord(ctx context.Context, userID, day string) (*models.DailyRecord, error)
	AwardChallenge(ctx context.Context, award models.ChallengeAward) (models.LedgerResult, error)
	SaveMonthlyGoal(ctx context.Context, goal models.MonthlyGoal) error
	AddCatalogItem(ctx context.Context, item models.RedeemableItem) (models.RedeemableItem, error)
}

// Generator produces motivational text for a prompt. Implementations may fail;
// the machine falls back to a fixed text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Machine drives dialogues for all users. It is safe for concurrent use as
// long as a single user's messages are handled one at a time.
type Machine struct {
	sessions SessionStore
	ledger   Ledger
	gen      Generator
	adminID  string
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithGenerator sets the text generator used after a challenge completes.
func WithGenerator(g Generator) Option {
	return func(m *Machine) { m.gen = g }
}

// WithAdmin sets the user id allowed to run admin-only dialogues.
func WithAdmin(userID string) Option {
	return func(m *Machine) { m.adminID = userID }
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a Machine.
func NewMachine(sessions SessionStore, ledger Ledger, opts ...Option) *Machine {
	m := &Machine{sessions: sessions, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAdmin reports whether userID is the configured admin.
func (m *Machine) IsAdmin(userID string) bool {
	return m.adminID != "" && userID == m.adminID
}

// Now returns the machine's current time in UTC.
func (m *Machine) Now() time.Time {
	return m.now().UTC()
}

// Active returns the user's open dialogue, or nil.
func (m *Machine) Active(ctx context.Context, userID string) (*models.ConversationState, error) {
	return m.sessions.Get(ctx, userID)
}

// Cancel drops any open dialogue for the user.
func (m *Machine) Cancel(ctx context.Context, userID string) error {
	return m.sessions.Delete(ctx, userID)
}

// Start opens a dialogue, replacing any open one, and returns the first question.
// Guard rejections return an error and leave the session store untouched.
func (m *Machine) Start(ctx context.Context, userID, chatID string, kind models.FlowKind) (Outcome, error) {
	def, ok := Get(kind)
	if !ok {
		return Outcome{}, fmt.Errorf("start %q: %w", kind, models.ErrUnknownChallenge)
	}
	if def.AdminOnly && !m.IsAdmin(userID) {
		slog.Warn("Machine.Start: permission denied", "userID", userID, "flow", kind)
		return Outcome{}, models.ErrPermissionDenied
	}
	if def.Guard != nil {
		if err := def.Guard(ctx, m, userID); err != nil {
			return Outcome{}, err
		}
	}

	now := m.Now()
	st := models.ConversationState{
		UserID:    userID,
		ChatID:    chatID,
		Flow:      kind,
		Step:      1,
		Answers:   map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.sessions.Put(ctx, st); err != nil {
		return Outcome{}, fmt.Errorf("open %s dialogue: %w", kind, err)
	}
	slog.Debug("Machine.Start: dialogue opened", "userID", userID, "flow", kind)

	var out Outcome
	if def.Intro != "" {
		out.Replies = append(out.Replies, models.Text(def.Intro))
	}
	out.Replies = append(out.Replies, models.Text(def.Steps[0].Prompt))
	return out, nil
}

// Advance feeds one message to the user's open dialogue. handled is false when
// the user has no open dialogue. Invalid answers re-prompt without changing state.
func (m *Machine) Advance(ctx context.Context, in Input) (Outcome, bool, error) {
	st, err := m.sessions.Get(ctx, in.UserID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("load dialogue: %w", err)
	}
	if st == nil {
		return Outcome{}, false, nil
	}
	def, ok := Get(st.Flow)
	if !ok || st.Step < 1 || st.Step > len(def.Steps) {
		slog.Warn("Machine.Advance: dropping unusable dialogue", "userID", in.UserID, "flow", st.Flow, "step", st.Step)
		if err := m.sessions.Delete(ctx, in.UserID); err != nil {
			return Outcome{}, true, err
		}
		return Outcome{ShowMainMenu: true}, true, nil
	}

	step := def.Steps[st.Step-1]
	value, err := step.accept(in)
	if err != nil {
		if inv, ok := isInvalidInput(err); ok {
			slog.Debug("Machine.Advance: answer rejected", "userID", in.UserID, "flow", st.Flow, "step", st.Step, "reason", inv.Hint)
			return reply(models.Text(inv.Hint), models.Text(step.Prompt)), true, nil
		}
		return Outcome{}, true, err
	}
	if st.Answers == nil {
		st.Answers = map[string]string{}
	}
	st.Answers[step.Field] = value
	st.UpdatedAt = m.Now()

	if st.Step < len(def.Steps) {
		st.Step++
		if err := m.sessions.Put(ctx, *st); err != nil {
			return Outcome{}, true, fmt.Errorf("save dialogue: %w", err)
		}
		return reply(models.Text(def.Steps[st.Step-1].Prompt)), true, nil
	}

	// Last answer: clear the dialogue before running its side effects.
	if err := m.sessions.Delete(ctx, in.UserID); err != nil {
		return Outcome{}, true, fmt.Errorf("close dialogue: %w", err)
	}
	out, err := def.Complete(ctx, m, *st, in)
	if err != nil {
		return Outcome{}, true, err
	}
	out.Done = true
	slog.Debug("Machine.Advance: dialogue completed", "userID", in.UserID, "flow", st.Flow)
	return out, true, nil
}

// Resume returns the pending question of a persisted dialogue so it can be
// asked again after a restart. Unusable dialogues are dropped and ok is false.
func (m *Machine) Resume(ctx context.Context, st models.ConversationState) (models.Reply, bool, error) {
	def, ok := Get(st.Flow)
	if !ok || st.Step < 1 || st.Step > len(def.Steps) {
		slog.Warn("Machine.Resume: dropping unusable dialogue", "userID", st.UserID, "flow", st.Flow, "step", st.Step)
		return models.Reply{}, false, m.sessions.Delete(ctx, st.UserID)
	}
	return models.Text(def.Steps[st.Step-1].Prompt), true, nil
}

// generate calls the generator and substitutes fallback on failure.
func (m *Machine) generate(ctx context.Context, prompt, fallback string) string {
	if m.gen == nil {
		return fallback
	}
	text, err := m.gen.Generate(ctx, prompt)
	if err != nil || text == "" {
		slog.Warn("Machine.generate: using fallback text", "error", err)
		return fallback
	}
	return text
}
