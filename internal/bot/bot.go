// Package bot routes inbound events to the conversation state machine and
// the menu, shop and leaderboard handlers, and runs the scheduled jobs.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/kyawsoe1992/G-T24-7bot/internal/flow"
	"github.com/kyawsoe1992/G-T24-7bot/internal/messaging"
	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/store"
)

// DefaultBroadcastConcurrency bounds concurrent sends in a broadcast.
const DefaultBroadcastConcurrency = 8

// Config holds the bot's deployment settings.
type Config struct {
	AdminUserID        string
	AnnouncementChatID string // chat receiving the monthly winner announcement
	CommunityLink      string
	// BroadcastConcurrency bounds concurrent reminder sends; 0 uses the default.
	BroadcastConcurrency int
	// RedemptionCooldown overrides models.RedemptionCooldown when positive.
	RedemptionCooldown time.Duration
	// Location is the zone the scheduled jobs run in; it decides which month
	// the winner job closes. Nil means UTC.
	Location *time.Location
}

// Generator produces motivational text. genai.Client implements it.
type Generator = flow.Generator

// Option configures a Bot.
type Option func(*Bot)

// WithGenerator sets the text generator. Without one, fixed texts are used.
func WithGenerator(g Generator) Option {
	return func(b *Bot) { b.gen = g }
}

// WithClock overrides time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

// Bot handles inbound events for one messaging service.
type Bot struct {
	svc     messaging.Service
	store   store.Store
	machine *flow.Machine
	gen     Generator
	cfg     Config
	now     func() time.Time
	locks   *userLocks
}

// New creates a Bot. sessions holds open dialogues; pass a
// flow.StoreBasedSessionStore to keep them across restarts.
func New(svc messaging.Service, st store.Store, sessions flow.SessionStore, cfg Config, opts ...Option) *Bot {
	b := &Bot{svc: svc, store: st, cfg: cfg, now: time.Now, locks: newUserLocks()}
	for _, opt := range opts {
		opt(b)
	}
	if b.cfg.BroadcastConcurrency <= 0 {
		b.cfg.BroadcastConcurrency = DefaultBroadcastConcurrency
	}
	if b.cfg.RedemptionCooldown <= 0 {
		b.cfg.RedemptionCooldown = models.RedemptionCooldown
	}
	machineOpts := []flow.Option{flow.WithAdmin(cfg.AdminUserID), flow.WithClock(b.now)}
	if b.gen != nil {
		machineOpts = append(machineOpts, flow.WithGenerator(b.gen))
	}
	b.machine = flow.NewMachine(sessions, st, machineOpts...)
	return b
}

// Run dispatches events until ctx is cancelled or the events channel closes,
// then waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	events := b.svc.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				slog.Info("Bot.Run: events channel closed")
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Dispatch(ctx, evt)
			}()
		}
	}
}

// Dispatch handles one event: it drops redelivered updates, serializes
// events of the same user, recovers panics and turns handler errors into a
// generic reply.
func (b *Bot) Dispatch(ctx context.Context, evt models.Event) {
	if evt.UserID == "" {
		return
	}
	unlock := b.locks.lock(evt.UserID)
	defer unlock()

	if evt.ID != "" {
		isNew, err := b.store.RecordInbound(ctx, evt.ID, evt.UserID)
		if err != nil {
			slog.Error("Bot.Dispatch: dedup record failed", "error", err, "eventID", evt.ID)
		} else if !isNew {
			slog.Debug("Bot.Dispatch: duplicate event ignored", "eventID", evt.ID, "userID", evt.UserID)
			return
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bot.Dispatch: handler panic", "panic", r, "userID", evt.UserID, "kind", evt.Kind, "stack", string(debug.Stack()))
			b.sendGenericError(ctx, evt)
		}
	}()

	if err := b.Handle(ctx, evt); err != nil {
		slog.Error("Bot.Dispatch: handler failed", "error", err, "userID", evt.UserID, "kind", evt.Kind, "command", evt.Command, "data", evt.Data)
		b.sendGenericError(ctx, evt)
	}
	if evt.ID != "" {
		if err := b.store.MarkProcessed(ctx, evt.ID); err != nil {
			slog.Warn("Bot.Dispatch: mark processed failed", "error", err, "eventID", evt.ID)
		}
	}
}

func (b *Bot) sendGenericError(ctx context.Context, evt models.Event) {
	if evt.Kind == models.EventCallback && evt.CallbackID != "" {
		if err := b.svc.AnswerCallback(ctx, evt.CallbackID, msgGenericError, true); err == nil {
			return
		}
	}
	if err := b.svc.Send(ctx, evt.ChatID, models.Text(msgGenericError)); err != nil {
		slog.Error("Bot.sendGenericError: send failed", "error", err, "chatID", evt.ChatID)
	}
}

// Handle routes one event. Returned errors are unexpected failures; guard
// rejections are answered directly and return nil.
func (b *Bot) Handle(ctx context.Context, evt models.Event) error {
	switch evt.Kind {
	case models.EventCommand:
		return b.handleCommand(ctx, evt)
	case models.EventCallback:
		return b.handleCallback(ctx, evt)
	case models.EventDocument:
		return b.advance(ctx, evt)
	case models.EventText:
		if handler, ok := b.menuHandler(strings.TrimSpace(evt.Text)); ok {
			return handler(ctx, evt)
		}
		return b.advance(ctx, evt)
	default:
		slog.Debug("Bot.Handle: ignoring event", "kind", evt.Kind)
		return nil
	}
}

func (b *Bot) handleCommand(ctx context.Context, evt models.Event) error {
	switch evt.Command {
	case "start":
		return b.handleStart(ctx, evt)
	case "addbook":
		return b.startFlow(ctx, evt, models.FlowAdminAddItem)
	case "points":
		return b.handlePoints(ctx, evt)
	case "leaderboard":
		return b.handleLeaderboard(ctx, evt)
	case "cancel":
		if err := b.machine.Cancel(ctx, evt.UserID); err != nil {
			return err
		}
		return b.send(ctx, evt.ChatID, MainMenu())
	default:
		if !evt.Private {
			return nil
		}
		return b.send(ctx, evt.ChatID, MainMenu())
	}
}

func (b *Bot) handleCallback(ctx context.Context, evt models.Event) error {
	switch data := evt.Data; {
	case data == models.CallbackShowChallenges:
		b.ack(ctx, evt, "", false)
		return b.send(ctx, evt.ChatID, flow.ChallengeMenu(msgChooseChallenge))
	case strings.HasPrefix(data, models.CallbackChallenge):
		b.ack(ctx, evt, "", false)
		if !evt.Private {
			return nil
		}
		return b.startFlow(ctx, evt, models.ChallengeFlow(strings.TrimPrefix(data, models.CallbackChallenge)))
	case strings.HasPrefix(data, models.CallbackRedeem):
		return b.handleRedeem(ctx, evt, strings.TrimPrefix(data, models.CallbackRedeem))
	case strings.HasPrefix(data, models.CallbackMood):
		return b.handleMood(ctx, evt)
	default:
		slog.Warn("Bot.handleCallback: unknown callback", "data", data, "userID", evt.UserID)
		b.ack(ctx, evt, "", false)
		return nil
	}
}

// startFlow opens a dialogue and sends its first question.
func (b *Bot) startFlow(ctx context.Context, evt models.Event, kind models.FlowKind) error {
	out, err := b.machine.Start(ctx, evt.UserID, evt.ChatID, kind)
	switch {
	case errors.Is(err, models.ErrPermissionDenied):
		return b.send(ctx, evt.ChatID, models.Text(msgPermissionDenied))
	case errors.Is(err, models.ErrChallengeAlreadyCompleted):
		return b.send(ctx, evt.ChatID, models.Text(msgAlreadyCompleted))
	case errors.Is(err, models.ErrUnknownChallenge):
		slog.Warn("Bot.startFlow: unknown flow requested", "flow", kind, "userID", evt.UserID)
		return b.send(ctx, evt.ChatID, flow.ChallengeMenu(msgChooseChallenge))
	case err != nil:
		return fmt.Errorf("start %s: %w", kind, err)
	}
	return b.sendOutcome(ctx, evt.ChatID, out)
}

// advance feeds free text or a document to the open dialogue. Without one,
// private chats get the main menu and groups are ignored.
func (b *Bot) advance(ctx context.Context, evt models.Event) error {
	if !evt.Private {
		return nil
	}
	out, handled, err := b.machine.Advance(ctx, flow.Input{
		UserID:      evt.UserID,
		ChatID:      evt.ChatID,
		DisplayName: evt.DisplayName(),
		Handle:      evt.Username,
		Text:        evt.Text,
		FileID:      evt.FileID,
	})
	if err != nil {
		return err
	}
	if !handled {
		if evt.Kind == models.EventDocument {
			return nil
		}
		return b.send(ctx, evt.ChatID, MainMenu())
	}
	return b.sendOutcome(ctx, evt.ChatID, out)
}

func (b *Bot) sendOutcome(ctx context.Context, chatID string, out flow.Outcome) error {
	for _, r := range out.Replies {
		if err := b.send(ctx, chatID, r); err != nil {
			if r.Optional {
				slog.Warn("Bot.sendOutcome: optional reply not delivered", "chatID", chatID, "error", err)
				continue
			}
			return err
		}
	}
	if out.ShowMainMenu {
		return b.send(ctx, chatID, MainMenu())
	}
	return nil
}

func (b *Bot) send(ctx context.Context, chatID string, r models.Reply) error {
	if err := b.svc.Send(ctx, chatID, r); err != nil {
		return fmt.Errorf("send to %s: %w", chatID, err)
	}
	return nil
}

// ack answers a button press; failures are only logged.
func (b *Bot) ack(ctx context.Context, evt models.Event, text string, alert bool) {
	if evt.CallbackID == "" {
		return
	}
	if err := b.svc.AnswerCallback(ctx, evt.CallbackID, text, alert); err != nil {
		slog.Warn("Bot.ack: answer callback failed", "error", err, "userID", evt.UserID)
	}
}

func (b *Bot) today() time.Time {
	return b.now().UTC()
}

func profileFromEvent(evt models.Event) models.UserProfile {
	return models.UserProfile{UserID: evt.UserID, DisplayName: evt.DisplayName(), Handle: evt.Username}
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// escapeMarkdown protects user-provided text inside Markdown replies.
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// userLocks serializes handlers per user.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{m: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

// ResumeDialogue asks the pending question of a dialogue persisted before a
// restart. It is registered with the recovery manager.
func (b *Bot) ResumeDialogue(ctx context.Context, st models.ConversationState) error {
	unlock := b.locks.lock(st.UserID)
	defer unlock()

	prompt, ok, err := b.machine.Resume(ctx, st)
	if err != nil {
		return fmt.Errorf("resume %s for %s: %w", st.Flow, st.UserID, err)
	}
	if !ok || st.ChatID == "" {
		return nil
	}
	if err := b.send(ctx, st.ChatID, models.Text(msgResume)); err != nil {
		return err
	}
	return b.send(ctx, st.ChatID, prompt)
}
