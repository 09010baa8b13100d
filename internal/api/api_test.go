package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/scheduler"
	"github.com/kyawsoe1992/G-T24-7bot/internal/store"
	"github.com/kyawsoe1992/G-T24-7bot/internal/testutil"
)

var testNow = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

type mockJobs struct{ jobs []scheduler.Job }

func (m mockJobs) Jobs() []scheduler.Job { return m.jobs }

type failingStandings struct{}

func (failingStandings) PeriodStandings(ctx context.Context, month string) ([]models.Standing, error) {
	return nil, errors.New("database unavailable")
}

func newTestServer(t *testing.T, st StandingsSource, opts ...Option) *Server {
	t.Helper()
	return NewServer(st, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	return rr
}

func TestHealthHandler(t *testing.T) {
	next := testNow.Add(time.Hour)
	s := newTestServer(t, store.NewInMemoryStore(), WithJobs(mockJobs{jobs: []scheduler.Job{{Name: "daily-reminder", Next: next}}}))

	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/healthz", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "healthz")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result: %v", resp)
	}
	jobs, ok := result["jobs"].([]interface{})
	if !ok || len(jobs) != 1 {
		t.Fatalf("unexpected jobs: %v", result["jobs"])
	}
	if name := jobs[0].(map[string]interface{})["name"]; name != "daily-reminder" {
		t.Errorf("job name = %v", name)
	}
}

func TestLeaderboardHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	testutil.SeedPoints(t, st, time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC), map[string]int{"A": 10, "B": 25, "C": 0})
	testutil.SeedPoints(t, st, testNow, map[string]int{"A": 3})
	s := newTestServer(t, st)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantMonth  string
		wantWinner string
		wantCount  int
	}{
		{"explicit month", "/api/leaderboard?month=2025-02", http.StatusOK, "2025-02", "B", 3},
		{"current month by default", "/api/leaderboard", http.StatusOK, "2025-03", "A", 1},
		{"empty month", "/api/leaderboard?month=2024-01", http.StatusOK, "2024-01", "", 0},
		{"invalid month", "/api/leaderboard?month=march", http.StatusBadRequest, "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, tt.url, nil))
			testutil.AssertHTTPStatus(t, tt.wantStatus, rr.Code, tt.url)
			if tt.wantStatus != http.StatusOK {
				testutil.AssertJSONResponse(t, rr, "error")
				return
			}

			var resp struct {
				Status string            `json:"status"`
				Result LeaderboardResult `json:"result"`
			}
			testutil.MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
			if resp.Result.Month != tt.wantMonth || len(resp.Result.Standings) != tt.wantCount {
				t.Errorf("unexpected result: %+v", resp.Result)
			}
			switch {
			case tt.wantWinner == "" && resp.Result.Winner != nil:
				t.Errorf("expected no winner, got %+v", resp.Result.Winner)
			case tt.wantWinner != "" && (resp.Result.Winner == nil || resp.Result.Winner.UserID != tt.wantWinner):
				t.Errorf("winner = %+v, want %s", resp.Result.Winner, tt.wantWinner)
			}
		})
	}
}

func TestLeaderboardHandler_StoreError(t *testing.T) {
	s := newTestServer(t, failingStandings{})
	rr := serve(s, testutil.CreateHTTPRequest(t, http.MethodGet, "/api/leaderboard", nil))
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "store error")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestTelegramWebhookRoute(t *testing.T) {
	called := 0
	hook := func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}
	s := newTestServer(t, store.NewInMemoryStore(), WithTelegramWebhook("s3cret", hook))

	rr := serve(s, testutil.CreateJSONRequest(t, http.MethodPost, "/s3cret", `{"update_id":1}`))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "correct secret")

	rr = serve(s, testutil.CreateJSONRequest(t, http.MethodPost, "/guess", `{"update_id":2}`))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "wrong secret")

	if called != 1 {
		t.Errorf("webhook called %d times, want 1", called)
	}
}

func TestTwilioWebhookRoute(t *testing.T) {
	var body string
	hook := func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		body = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusOK)
	}
	s := newTestServer(t, store.NewInMemoryStore(), WithTwilioWebhook(hook))

	req, _ := http.NewRequest(http.MethodPost, TwilioWebhookPath, strings.NewReader("Body=hello&From=whatsapp%3A%2B15550001111"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := serve(s, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "twilio webhook")
	if body != "hello" {
		t.Errorf("body = %q", body)
	}
}

func TestWebhooksDisabledByDefault(t *testing.T) {
	s := newTestServer(t, store.NewInMemoryStore())
	rr := serve(s, testutil.CreateJSONRequest(t, http.MethodPost, TwilioWebhookPath, `{}`))
	if rr.Code == http.StatusOK {
		t.Errorf("twilio webhook should not be mounted, got %d", rr.Code)
	}
	rr = serve(s, testutil.CreateJSONRequest(t, http.MethodPost, "/anything", `{}`))
	if rr.Code == http.StatusOK {
		t.Errorf("telegram webhook should not be mounted, got %d", rr.Code)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, store.NewInMemoryStore(), WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
