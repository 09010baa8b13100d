package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/util"
)

// JobStatus is one scheduled job on the health endpoint.
type JobStatus struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
}

// HealthResult is the result of GET /healthz.
type HealthResult struct {
	Time time.Time   `json:"time"`
	Jobs []JobStatus `json:"jobs"`
}

// RankedStanding is one leaderboard row.
type RankedStanding struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// LeaderboardResult is the result of GET /api/leaderboard.
type LeaderboardResult struct {
	Month     string           `json:"month"`
	Standings []RankedStanding `json:"standings"`
	Winner    *RankedStanding  `json:"winner,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	res := HealthResult{Time: s.opts.Now().UTC(), Jobs: []JobStatus{}}
	if s.opts.Jobs != nil {
		for _, j := range s.opts.Jobs.Jobs() {
			res.Jobs = append(res.Jobs, JobStatus{Name: j.Name, NextRun: j.Next})
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// leaderboardHandler serves GET /api/leaderboard?month=YYYY-MM. The month
// defaults to the current one.
func (s *Server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		month = util.MonthKey(s.opts.Now())
	}
	if !util.ValidMonth(month) {
		slog.Warn("Server.leaderboardHandler: invalid month", "month", month)
		writeError(w, http.StatusBadRequest, "month must be formatted as YYYY-MM")
		return
	}

	standings, err := s.st.PeriodStandings(r.Context(), month)
	if err != nil {
		slog.Error("Server.leaderboardHandler: failed to load standings", "error", err, "month", month)
		writeError(w, http.StatusInternalServerError, "Failed to load leaderboard")
		return
	}

	res := LeaderboardResult{Month: month, Standings: make([]RankedStanding, 0, len(standings))}
	for i, st := range models.RankStandings(standings) {
		res.Standings = append(res.Standings, RankedStanding{Rank: i + 1, UserID: st.UserID, Name: st.Name(), Points: st.Points})
	}
	if _, ok := models.SelectWinner(standings); ok {
		res.Winner = &res.Standings[0]
	}
	slog.Debug("Server.leaderboardHandler: standings served", "month", month, "count", len(res.Standings))
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// telegramWebhookHandler passes the update on when the path carries the secret.
func (s *Server) telegramWebhookHandler(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.WebhookSecret)) != 1 {
		slog.Warn("Server.telegramWebhookHandler: unknown webhook path")
		http.NotFound(w, r)
		return
	}
	s.opts.TelegramWebhook(w, r)
}
