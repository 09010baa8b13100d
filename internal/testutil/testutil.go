// Package testutil provides common test utilities and helpers for the challenge bot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
	"github.com/kyawsoe1992/G-T24-7bot/internal/store"
	"github.com/kyawsoe1992/G-T24-7bot/internal/util"
)

// TB is the subset of testing.TB the helpers use, so they can be tested themselves.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Fatalf(format string, args ...interface{})
	Fatal(args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// CreateJSONRequest creates an HTTP request carrying a raw JSON body.
func CreateJSONRequest(t TB, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// SeedPoints records one completed challenge worth points for each user on
// day, creating the profiles as needed.
func SeedPoints(t TB, st store.Store, day time.Time, points map[string]int) {
	t.Helper()
	for userID, p := range points {
		if _, err := st.AwardChallenge(context.Background(), models.ChallengeAward{
			UserID:      userID,
			DisplayName: userID,
			Day:         util.DayKey(day),
			ChallengeID: models.ChallengeReading,
			Answers:     map[string]string{"book": "seed", "benefit": "seed"},
			Points:      p,
			At:          day,
		}); err != nil {
			t.Fatalf("failed to seed points for %s: %v", userID, err)
		}
	}
}

// SeedCatalog adds link items to the catalog, one per title, costing cost each.
func SeedCatalog(t TB, st store.Store, cost int, titles ...string) []models.RedeemableItem {
	t.Helper()
	items := make([]models.RedeemableItem, 0, len(titles))
	for _, title := range titles {
		item, err := st.AddCatalogItem(context.Background(), models.RedeemableItem{
			Title:       title,
			PointCost:   cost,
			PayloadKind: models.PayloadURL,
			Payload:     "https://example.com/" + strings.ReplaceAll(strings.ToLower(title), " ", "-") + ".pdf",
		})
		if err != nil {
			t.Fatalf("failed to seed catalog item %q: %v", title, err)
		}
		items = append(items, item)
	}
	return items
}

// AssertTotalPoints checks a user's running total.
func AssertTotalPoints(t TB, st store.Store, userID string, expected int, label string) {
	t.Helper()
	p, err := st.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("%s: failed to load profile %s: %v", label, userID, err)
	}
	got := 0
	if p != nil {
		got = p.TotalPoints
	}
	if got != expected {
		t.Errorf("%s: expected %s to have %d points, got %d", label, userID, expected, got)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
