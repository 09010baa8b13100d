package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kyawsoe1992/G-T24-7bot/internal/flow"
	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/util"
)

// leaderboardSize caps the /leaderboard listing.
const leaderboardSize = 10

type handlerFunc func(ctx context.Context, evt models.Event) error

func (b *Bot) menuHandler(label string) (handlerFunc, bool) {
	switch label {
	case LabelChooseChallenge:
		return b.handleChooseChallenge, true
	case LabelSetGoal:
		return b.handleSetGoal, true
	case LabelDailyLog:
		return b.handleDailyLog, true
	case LabelProgress:
		return b.handleProgress, true
	case LabelShop:
		return b.handleShop, true
	case LabelMotivation:
		return b.handleMotivation, true
	case LabelMood:
		return b.handleMoodMenu, true
	case LabelCommunity:
		return b.handleCommunity, true
	}
	return nil, false
}

// handleStart drops any open dialogue, creates the profile and shows the menu.
func (b *Bot) handleStart(ctx context.Context, evt models.Event) error {
	if err := b.machine.Cancel(ctx, evt.UserID); err != nil {
		return fmt.Errorf("cancel dialogue: %w", err)
	}
	p := profileFromEvent(evt)
	p.CreatedAt = b.today()
	if _, created, err := b.store.EnsureProfile(ctx, p); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	} else if created {
		slog.Info("Bot.handleStart: new user", "userID", evt.UserID)
	}
	if err := b.send(ctx, evt.ChatID, models.Text(msgWelcome)); err != nil {
		return err
	}
	return b.send(ctx, evt.ChatID, MainMenu())
}

func (b *Bot) handleChooseChallenge(ctx context.Context, evt models.Event) error {
	if !evt.Private {
		return nil
	}
	return b.send(ctx, evt.ChatID, flow.ChallengeMenu(msgChooseChallenge))
}

func (b *Bot) handleSetGoal(ctx context.Context, evt models.Event) error {
	if !evt.Private {
		return nil
	}
	return b.startFlow(ctx, evt, models.FlowMonthlyGoal)
}

// handleDailyLog lists today's challenges with their answers and the balances.
func (b *Bot) handleDailyLog(ctx context.Context, evt models.Event) error {
	rec, err := b.store.GetDailyRecord(ctx, evt.UserID, util.DayKey(b.today()))
	if err != nil {
		return fmt.Errorf("load daily record: %w", err)
	}
	if rec == nil || len(rec.Challenges) == 0 {
		return b.send(ctx, evt.ChatID, models.Text(msgNoChallengesYet))
	}
	profile, err := b.store.GetProfile(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	total := 0
	if profile != nil {
		total = profile.TotalPoints
	}

	var sb strings.Builder
	sb.WriteString(msgDailyTitle + "\n\n")
	for _, c := range models.ChallengeTypes() {
		answers, ok := rec.Challenges[c.ID]
		if !ok {
			continue
		}
		escaped := make(map[string]string, len(answers))
		for k, v := range answers {
			escaped[k] = escapeMarkdown(v)
		}
		fmt.Fprintf(&sb, "*%s*\n%s\n", c.Label, c.Describe(escaped))
	}
	fmt.Fprintf(&sb, msgDailyPoints+"\n", rec.Points)
	fmt.Fprintf(&sb, msgTotalPoints, total)
	return b.send(ctx, evt.ChatID, models.Markdown(sb.String()))
}

// handleProgress computes this month's completion rate, stores it on the
// goal record and the public leaderboard, and reports it.
func (b *Bot) handleProgress(ctx context.Context, evt models.Event) error {
	now := b.today()
	month := util.MonthKey(now)
	goal, err := b.store.GetMonthlyGoal(ctx, evt.UserID, month)
	if err != nil {
		return fmt.Errorf("load monthly goal: %w", err)
	}
	if goal == nil {
		return b.send(ctx, evt.ChatID, models.Text(msgNoGoalSet))
	}
	summary, err := b.store.MonthSummary(ctx, evt.UserID, month)
	if err != nil {
		return fmt.Errorf("load month summary: %w", err)
	}
	pct := completionPercentage(summary.ActiveDays, now.Day())

	if err := b.store.UpdateGoalProgress(ctx, evt.UserID, month, pct); err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	name := profileFromEvent(evt).Name()
	if err := b.store.UpsertLeaderboard(ctx, models.LeaderboardEntry{
		UserID:               evt.UserID,
		Month:                month,
		DisplayName:          name,
		CompletionPercentage: pct,
		Points:               summary.Points,
		UpdatedAt:            now,
	}); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	lines := []string{
		fmt.Sprintf(msgProgressTitle, now.Month().String()),
		"",
		fmt.Sprintf(msgProgressGoal, escapeMarkdown(goal.Goal)),
		fmt.Sprintf(msgProgressDays, summary.ActiveDays, now.Day()),
		fmt.Sprintf(msgProgressPercent, pct),
	}
	return b.send(ctx, evt.ChatID, models.Markdown(strings.Join(lines, "\n")))
}

// completionPercentage is active days over elapsed days, rounded and capped at 100.
func completionPercentage(activeDays, dayOfMonth int) int {
	if dayOfMonth <= 0 {
		return 0
	}
	pct := int(math.Round(float64(activeDays) / float64(dayOfMonth) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// handleShop lists the catalog with one redeem button per item.
func (b *Bot) handleShop(ctx context.Context, evt models.Event) error {
	items, err := b.store.ListCatalogItems(ctx)
	if err != nil {
		return fmt.Errorf("list catalog: %w", err)
	}
	if len(items) == 0 {
		return b.send(ctx, evt.ChatID, models.Text(msgShopEmpty))
	}
	profile, err := b.store.GetProfile(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	r := models.Reply{Text: msgShopTitle + "\n", Columns: 1}
	for _, item := range items {
		r.Text += fmt.Sprintf("\n%s: %d points", item.Title, item.PointCost)
		label := fmt.Sprintf(msgShopItem, item.Title, item.PointCost)
		if profile != nil && profile.HasRedeemed(item.ID) {
			label = fmt.Sprintf(msgShopRedeemed, item.Title)
		}
		r.Buttons = append(r.Buttons, models.Button{Label: label, Data: models.CallbackRedeem + item.ID})
	}
	return b.send(ctx, evt.ChatID, r)
}

// handleRedeem applies a redemption and delivers the payload. Rejections
// are answered as alerts on the button press.
func (b *Bot) handleRedeem(ctx context.Context, evt models.Event, itemID string) error {
	res, err := b.store.Redeem(ctx, models.RedeemRequest{
		UserID:   evt.UserID,
		ItemID:   itemID,
		At:       b.today(),
		Cooldown: b.cfg.RedemptionCooldown,
	})
	if err != nil {
		reason, ok := redeemRejection(err)
		if !ok {
			return fmt.Errorf("redeem %s: %w", itemID, err)
		}
		slog.Info("Bot.handleRedeem: redemption rejected", "userID", evt.UserID, "itemID", itemID, "reason", err)
		b.ack(ctx, evt, reason, true)
		return nil
	}
	slog.Info("Bot.handleRedeem: item redeemed", "userID", evt.UserID, "itemID", itemID, "cost", res.Item.PointCost, "total", res.TotalPoints)

	b.ack(ctx, evt, "", false)
	if err := b.send(ctx, evt.ChatID, models.Text(fmt.Sprintf(msgRedeemed, res.Item.Title, res.TotalPoints))); err != nil {
		return err
	}
	if res.Item.PayloadKind == models.PayloadFile {
		if err := b.svc.SendFile(ctx, evt.ChatID, res.Item.Payload, res.Item.Title); err != nil {
			return fmt.Errorf("deliver %s: %w", itemID, err)
		}
		return nil
	}
	return b.send(ctx, evt.ChatID, models.Text(fmt.Sprintf(msgDownloadLink, res.Item.Payload)))
}

func redeemRejection(err error) (string, bool) {
	switch {
	case errors.Is(err, models.ErrUnknownItem):
		return msgUnknownItem, true
	case errors.Is(err, models.ErrAlreadyRedeemed):
		return msgAlreadyRedeemed, true
	case errors.Is(err, models.ErrCooldownActive):
		return msgCooldownActive, true
	case errors.Is(err, models.ErrInsufficientPoints):
		return msgNotEnoughPoints, true
	}
	return "", false
}

// handleMotivation sends a generated quote based on today's activity.
func (b *Bot) handleMotivation(ctx context.Context, evt models.Event) error {
	rec, err := b.store.GetDailyRecord(ctx, evt.UserID, util.DayKey(b.today()))
	if err != nil {
		return fmt.Errorf("load daily record: %w", err)
	}
	count, points := 0, 0
	if rec != nil {
		count, points = len(rec.Challenges), rec.Points
	}
	quote := b.generate(ctx, fmt.Sprintf(msgMotivationPrompt, count, points), msgMotivationFallback)
	return b.send(ctx, evt.ChatID, models.Text("✨ "+quote))
}

func (b *Bot) handleMoodMenu(ctx context.Context, evt models.Event) error {
	return b.send(ctx, evt.ChatID, models.Reply{Text: msgMoodPrompt, Buttons: moods, Columns: 2})
}

func (b *Bot) handleMood(ctx context.Context, evt models.Event) error {
	if !validMood(evt.Data) {
		b.ack(ctx, evt, "", false)
		return nil
	}
	now := b.today()
	if err := b.store.SaveMood(ctx, models.MoodEntry{
		UserID:     evt.UserID,
		Day:        util.DayKey(now),
		Mood:       strings.TrimPrefix(evt.Data, models.CallbackMood),
		RecordedAt: now,
	}); err != nil {
		return fmt.Errorf("save mood: %w", err)
	}
	b.ack(ctx, evt, "", false)
	return b.send(ctx, evt.ChatID, models.Text(msgMoodRecorded))
}

func (b *Bot) handleCommunity(ctx context.Context, evt models.Event) error {
	if b.cfg.CommunityLink == "" {
		return b.send(ctx, evt.ChatID, models.Text(msgCommunityMissing))
	}
	return b.send(ctx, evt.ChatID, models.Text(fmt.Sprintf(msgCommunity, b.cfg.CommunityLink)))
}

func (b *Bot) handlePoints(ctx context.Context, evt models.Event) error {
	p, err := b.store.GetProfile(ctx, evt.UserID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	total := 0
	if p != nil {
		total = p.TotalPoints
	}
	return b.send(ctx, evt.ChatID, models.Text(fmt.Sprintf(msgPoints, total)))
}

// handleLeaderboard shows the current month's top standings.
func (b *Bot) handleLeaderboard(ctx context.Context, evt models.Event) error {
	month := util.MonthKey(b.today())
	standings, err := b.store.PeriodStandings(ctx, month)
	if err != nil {
		return fmt.Errorf("load standings: %w", err)
	}
	lines := []string{fmt.Sprintf(msgLeaderboardTitle, month), ""}
	shown := 0
	for _, s := range standings {
		if s.Points <= 0 || shown == leaderboardSize {
			break
		}
		shown++
		lines = append(lines, fmt.Sprintf(msgLeaderboardLine, shown, escapeMarkdown(s.Name()), s.Points))
	}
	if shown == 0 {
		return b.send(ctx, evt.ChatID, models.Text(msgLeaderboardEmpty))
	}
	return b.send(ctx, evt.ChatID, models.Markdown(strings.Join(lines, "\n")))
}

// generate calls the generator and substitutes fallback on failure.
func (b *Bot) generate(ctx context.Context, prompt, fallback string) string {
	if b.gen == nil {
		return fallback
	}
	text, err := b.gen.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("Bot.generate: using fallback text", "error", err)
		return fallback
	}
	return text
}
