package messaging

import (
	"testing"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/start", "start", true},
		{"  /Points extra", "points", true},
		{"/leaderboard@ChallengeBot", "leaderboard", true},
		{"/", "", false},
		{"/ start", "", false},
		{"start", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseCommand(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMenuTracker_RenderAndResolve(t *testing.T) {
	m := NewMenuTracker()
	r := models.Reply{
		Text:     "Main menu",
		Buttons:  []models.Button{{Label: "Reading", Data: "challenge_reading"}},
		Keyboard: [][]string{{"Daily log", "Shop"}},
	}
	got := m.Render("chat", r)
	want := "Main menu\n\n1. Reading\n2. Daily log\n3. Shop\n\nReply with a number."
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}

	if opt, ok := m.Resolve("chat", " 1 "); !ok || opt.Data != "challenge_reading" {
		t.Errorf("Resolve(1) = %+v, %v", opt, ok)
	}
	if opt, ok := m.Resolve("chat", "3"); !ok || opt.Label != "Shop" || opt.Data != "" {
		t.Errorf("Resolve(3) = %+v, %v", opt, ok)
	}
	for _, in := range []string{"0", "4", "abc", ""} {
		if _, ok := m.Resolve("chat", in); ok {
			t.Errorf("Resolve(%q) should fail", in)
		}
	}
	if _, ok := m.Resolve("other", "1"); ok {
		t.Error("menus must be tracked per chat")
	}

	// A reply without options forgets the menu, so free-text answers pass through.
	if got := m.Render("chat", models.Text("Which book did you read?")); got != "Which book did you read?" {
		t.Errorf("plain Render() = %q", got)
	}
	if _, ok := m.Resolve("chat", "1"); ok {
		t.Error("menu should be forgotten after a plain reply")
	}
}

func TestMenuTracker_TextEvent(t *testing.T) {
	m := NewMenuTracker()
	m.Render("c", models.Reply{Text: "menu", Keyboard: [][]string{{"Shop"}}})

	evt := m.textEvent(models.Event{ChatID: "c", Text: "1"})
	if evt.Kind != models.EventText || evt.Text != "Shop" {
		t.Errorf("keyboard answer = %+v", evt)
	}
	evt = m.textEvent(models.Event{ChatID: "c", Text: "/points"})
	if evt.Kind != models.EventCommand || evt.Command != "points" {
		t.Errorf("command = %+v", evt)
	}
	evt = m.textEvent(models.Event{ChatID: "c", Text: "Atomic Habits"})
	if evt.Kind != models.EventText || evt.Text != "Atomic Habits" {
		t.Errorf("free text = %+v", evt)
	}
}
