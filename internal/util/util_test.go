package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"OFF", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("CHALLENGEBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("CHALLENGEBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("value %q: expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("CHALLENGEBOT_TEST_INT", "12")
	if got := ParseIntEnv("CHALLENGEBOT_TEST_INT", 3); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	t.Setenv("CHALLENGEBOT_TEST_INT", "twelve")
	if got := ParseIntEnv("CHALLENGEBOT_TEST_INT", 3); got != 3 {
		t.Errorf("expected default 3, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("CHALLENGEBOT_TEST_DURATION", "45s")
	if got := ParseDurationEnv("CHALLENGEBOT_TEST_DURATION", time.Second); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
}

func TestCalendarKeys(t *testing.T) {
	// 23:30 in UTC-5 is already the next UTC day.
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2025, 1, 31, 23, 30, 0, 0, loc)
	if got := DayKey(ts); got != "2025-02-01" {
		t.Errorf("DayKey: expected 2025-02-01, got %s", got)
	}
	if got := MonthKey(ts); got != "2025-02" {
		t.Errorf("MonthKey: expected 2025-02, got %s", got)
	}
	if got := PreviousMonth(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); got != "2024-12" {
		t.Errorf("PreviousMonth: expected 2024-12, got %s", got)
	}
	if got := PreviousMonth(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)); got != "2025-02" {
		t.Errorf("PreviousMonth: expected 2025-02, got %s", got)
	}
}

func TestPreviousMonthIn(t *testing.T) {
	yangon := time.FixedZone("MMT", 6*3600+30*60)
	newYork := time.FixedZone("EST", -5*3600)
	tests := []struct {
		name string
		t    time.Time
		loc  *time.Location
		want string
	}{
		// 00:00 on April 1 in Yangon is still March 31 in UTC.
		{"ahead of UTC", time.Date(2025, 4, 1, 0, 0, 0, 0, yangon), yangon, "2025-03"},
		{"same instant in UTC", time.Date(2025, 4, 1, 0, 0, 0, 0, yangon), time.UTC, "2025-02"},
		{"behind UTC", time.Date(2025, 4, 1, 0, 0, 0, 0, newYork), newYork, "2025-03"},
		{"year boundary", time.Date(2025, 1, 1, 0, 0, 0, 0, yangon), yangon, "2024-12"},
		{"nil location", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), nil, "2025-03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreviousMonthIn(tt.t, tt.loc); got != tt.want {
				t.Errorf("PreviousMonthIn = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDaysInMonth(t *testing.T) {
	n, err := DaysInMonth("2024-02")
	if err != nil || n != 29 {
		t.Errorf("expected 29 days in 2024-02, got %d (%v)", n, err)
	}
	if _, err := DaysInMonth("February"); err == nil {
		t.Error("expected error for malformed month")
	}
	if ValidMonth("2024-13") {
		t.Error("expected 2024-13 to be invalid")
	}
}
