package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/scheduler"
	"github.com/kyawsoe1992/G-T24-7bot/internal/util"
)

// Default cron expressions for the scheduled jobs.
const (
	DefaultReminderCron = "0 9,12,19 * * *"
	DefaultWinnerCron   = "0 0 1 * *"
)

// ErrNoAnnouncementChat is returned when no chat is configured for the winner announcement.
var ErrNoAnnouncementChat = errors.New("announcement chat not configured")

// BroadcastReport summarizes one reminder broadcast.
type BroadcastReport struct {
	Recipients int
	Sent       int
	Failed     int
}

// SendDailyReminder sends the reminder with one generated motivation line
// to every known user. A failed recipient never aborts the broadcast.
func (b *Bot) SendDailyReminder(ctx context.Context) (BroadcastReport, error) {
	profiles, err := b.store.ListProfiles(ctx)
	if err != nil {
		return BroadcastReport{}, fmt.Errorf("list profiles: %w", err)
	}
	report := BroadcastReport{Recipients: len(profiles)}
	if len(profiles) == 0 {
		slog.Info("Bot.SendDailyReminder: no users to remind")
		return report, nil
	}

	motivation := b.generate(ctx, msgReminderPrompt, msgReminderFallback)
	reminder := models.Reply{
		Text:     fmt.Sprintf(msgDailyReminder, escapeMarkdown(motivation)),
		Markdown: true,
		Buttons:  []models.Button{{Label: labelDoChallenge, Data: models.CallbackShowChallenges}},
	}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(b.cfg.BroadcastConcurrency)
	for _, p := range profiles {
		g.Go(func() error {
			if err := b.svc.Send(ctx, p.UserID, reminder); err != nil {
				failed.Add(1)
				slog.Warn("Bot.SendDailyReminder: send failed", "userID", p.UserID, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report.Sent, report.Failed = int(sent.Load()), int(failed.Load())
	slog.Info("Bot.SendDailyReminder: broadcast finished", "recipients", report.Recipients, "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

// AnnounceMonthlyWinner announces last month's winner, or that there was
// none, to the announcement chat and then resets every running total.
// Points are only reset once the announcement was delivered.
func (b *Bot) AnnounceMonthlyWinner(ctx context.Context) (models.Standing, bool, error) {
	if b.cfg.AnnouncementChatID == "" {
		return models.Standing{}, false, ErrNoAnnouncementChat
	}
	// The job fires at the start of a month on the scheduler's wall clock,
	// which may still be the previous month in UTC.
	month := util.PreviousMonthIn(b.now(), b.cfg.Location)
	standings, err := b.store.PeriodStandings(ctx, month)
	if err != nil {
		return models.Standing{}, false, fmt.Errorf("load standings for %s: %w", month, err)
	}
	winner, ok := models.SelectWinner(standings)

	msg := models.Text(fmt.Sprintf(msgNoWinner, month))
	if ok {
		msg = models.Markdown(fmt.Sprintf(msgWinner, month, escapeMarkdown(winner.Name()), winner.Points))
	}
	if err := b.send(ctx, b.cfg.AnnouncementChatID, msg); err != nil {
		return models.Standing{}, false, fmt.Errorf("announce winner: %w", err)
	}

	n, err := b.store.ResetAllPoints(ctx)
	if err != nil {
		return winner, ok, fmt.Errorf("reset points: %w", err)
	}
	slog.Info("Bot.AnnounceMonthlyWinner: period closed", "month", month, "winner", winner.UserID, "hasWinner", ok, "points", winner.Points, "profilesReset", n)
	return winner, ok, nil
}

// RegisterJobs schedules the reminder and winner jobs. Empty expressions use the defaults.
func (b *Bot) RegisterJobs(ctx context.Context, s *scheduler.Scheduler, reminderCron, winnerCron string) error {
	if reminderCron == "" {
		reminderCron = DefaultReminderCron
	}
	if winnerCron == "" {
		winnerCron = DefaultWinnerCron
	}
	if err := s.AddJob("daily-reminder", reminderCron, func() {
		if _, err := b.SendDailyReminder(ctx); err != nil {
			slog.Error("Bot.RegisterJobs: daily reminder failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule daily reminder %q: %w", reminderCron, err)
	}
	if err := s.AddJob("monthly-winner", winnerCron, func() {
		if _, _, err := b.AnnounceMonthlyWinner(ctx); err != nil {
			slog.Error("Bot.RegisterJobs: monthly winner failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule monthly winner %q: %w", winnerCron, err)
	}
	return nil
}
