package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/util"
)

// filePayloadPrefix marks an uploaded file reference in the payload answer.
const filePayloadPrefix = "file:"

// ChallengeMenu renders the challenge picker with one button per registered type.
func ChallengeMenu(text string) models.Reply {
	types := models.ChallengeTypes()
	buttons := make([]models.Button, 0, len(types))
	for _, c := range types {
		buttons = append(buttons, models.Button{Label: c.Label, Data: models.CallbackChallenge + c.ID})
	}
	return models.Reply{Text: text, Buttons: buttons, Columns: 1}
}

func challengeDefinition(c models.ChallengeType) Definition {
	steps := make([]Step, 0, len(c.Questions))
	for _, q := range c.Questions {
		steps = append(steps, Step{Field: q.Field, Prompt: q.Prompt})
	}
	return Definition{
		Kind:  models.ChallengeFlow(c.ID),
		Intro: fmt.Sprintf(msgAcceptChallenge, c.Label),
		Steps: steps,
		Guard: func(ctx context.Context, m *Machine, userID string) error {
			rec, err := m.ledger.GetDailyRecord(ctx, userID, util.DayKey(m.Now()))
			if err != nil {
				return fmt.Errorf("check today's challenges: %w", err)
			}
			if rec.HasChallenge(c.ID) {
				return models.ErrChallengeAlreadyCompleted
			}
			return nil
		},
		Complete: func(ctx context.Context, m *Machine, st models.ConversationState, in Input) (Outcome, error) {
			return completeChallenge(ctx, m, c, st, in)
		},
	}
}

func completeChallenge(ctx context.Context, m *Machine, c models.ChallengeType, st models.ConversationState, in Input) (Outcome, error) {
	now := m.Now()
	res, err := m.ledger.AwardChallenge(ctx, models.ChallengeAward{
		UserID:      st.UserID,
		DisplayName: in.DisplayName,
		Handle:      in.Handle,
		Day:         util.DayKey(now),
		ChallengeID: c.ID,
		Answers:     st.Answers,
		Points:      models.ChallengePoints,
		At:          now,
	})
	if errors.Is(err, models.ErrChallengeAlreadyCompleted) {
		return Outcome{Replies: []models.Reply{models.Text(msgAlreadyCompleted)}, ShowMainMenu: true}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("award %s challenge: %w", c.ID, err)
	}

	// Generation runs after the ledger commit and never blocks the award.
	// Generated text is sent as plain text after the confirmation.
	summary := m.generate(ctx, c.SummaryPrompt(st.Answers), msgSummaryFallback)
	return reply(
		models.Text(fmt.Sprintf(msgPointsReceived, models.ChallengePoints, res.TotalPoints)),
		models.Reply{Text: "✨ " + summary, Optional: true},
		ChallengeMenu(msgChallengeComplete),
	), nil
}

func goalDefinition() Definition {
	return Definition{
		Kind:  models.FlowMonthlyGoal,
		Steps: []Step{{Field: "goal", Prompt: msgGoalPrompt}},
		Complete: func(ctx context.Context, m *Machine, st models.ConversationState, in Input) (Outcome, error) {
			now := m.Now()
			goal := models.MonthlyGoal{
				UserID:    st.UserID,
				Month:     util.MonthKey(now),
				Goal:      st.Answers["goal"],
				UpdatedAt: now,
			}
			if err := m.ledger.SaveMonthlyGoal(ctx, goal); err != nil {
				return Outcome{}, fmt.Errorf("save monthly goal: %w", err)
			}
			return Outcome{Replies: []models.Reply{models.Text(msgGoalSaved)}, ShowMainMenu: true}, nil
		},
	}
}

func addItemDefinition() Definition {
	return Definition{
		Kind:      models.FlowAdminAddItem,
		AdminOnly: true,
		Steps: []Step{
			{Field: "title", Prompt: msgItemTitlePrompt},
			{Field: "cost", Prompt: msgItemCostPrompt, Accept: acceptPointCost},
			{Field: "payload", Prompt: msgItemPayloadPrompt, Accept: acceptPayload},
		},
		Complete: func(ctx context.Context, m *Machine, st models.ConversationState, in Input) (Outcome, error) {
			cost, err := strconv.Atoi(st.Answers["cost"])
			if err != nil {
				return Outcome{}, fmt.Errorf("stored point cost %q: %w", st.Answers["cost"], err)
			}
			item := models.RedeemableItem{
				Title:       st.Answers["title"],
				PointCost:   cost,
				PayloadKind: models.PayloadURL,
				Payload:     st.Answers["payload"],
				CreatedAt:   m.Now(),
			}
			if ref, ok := strings.CutPrefix(item.Payload, filePayloadPrefix); ok {
				item.PayloadKind, item.Payload = models.PayloadFile, ref
			}
			added, err := m.ledger.AddCatalogItem(ctx, item)
			if err != nil {
				return Outcome{}, fmt.Errorf("add catalog item: %w", err)
			}
			slog.Info("flow: catalog item added", "itemID", added.ID, "title", added.Title, "cost", added.PointCost, "kind", added.PayloadKind)
			return Outcome{
				Replies:      []models.Reply{models.Text(fmt.Sprintf(msgItemAdded, added.Title, added.PointCost))},
				ShowMainMenu: true,
			}, nil
		},
	}
}

func acceptPointCost(in Input) (string, error) {
	n, err := models.ParsePointCost(in.Text)
	if err != nil {
		return "", &InvalidInput{Hint: msgInvalidCost}
	}
	return strconv.Itoa(n), nil
}

func acceptPayload(in Input) (string, error) {
	if in.FileID != "" {
		return filePayloadPrefix + in.FileID, nil
	}
	if u, ok := parseHTTPURL(in.Text); ok {
		return u, nil
	}
	return "", &InvalidInput{Hint: msgInvalidPayload}
}
