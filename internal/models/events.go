package models

import "time"

// EventKind classifies inbound events.
type EventKind string

const (
	EventText     EventKind = "text"
	EventCommand  EventKind = "command"
	EventCallback EventKind = "callback"
	EventDocument EventKind = "document"
)

// Event is an inbound message, command, button press or attachment,
// normalized across transports.
type Event struct {
	ID         string // transport-unique id, used for de-duplication
	Kind       EventKind
	UserID     string
	ChatID     string
	FirstName  string
	LastName   string
	Username   string
	Private    bool
	Text       string
	Command    string // without the leading slash
	CallbackID string
	Data       string // callback token
	FileID     string
	Time       time.Time
}

// DisplayName joins first and last name.
func (e Event) DisplayName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	if e.FirstName == "" {
		return e.LastName
	}
	return e.FirstName + " " + e.LastName
}

// Callback token prefixes carried by inline buttons.
const (
	CallbackChallenge      = "challenge_"
	CallbackRedeem         = "redeem_"
	CallbackMood           = "mood_"
	CallbackShowChallenges = "show_challenges"
)

// Button is one inline menu entry.
type Button struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Reply is one outbound message. Buttons render as an inline menu with
// Columns buttons per row; Keyboard replaces the user's reply keyboard.
// A failed send of an Optional reply is logged and the rest still go out.
type Reply struct {
	Text     string
	Markdown bool
	Buttons  []Button
	Columns  int
	Keyboard [][]string
	Optional bool
}

// Text builds a plain reply.
func Text(s string) Reply {
	return Reply{Text: s}
}

// Markdown builds a Markdown-formatted reply.
func Markdown(s string) Reply {
	return Reply{Text: s, Markdown: true}
}

// ButtonRows splits the buttons into rows of Columns entries.
func (r Reply) ButtonRows() [][]Button {
	cols := r.Columns
	if cols <= 0 {
		cols = 1
	}
	var rows [][]Button
	for i := 0; i < len(r.Buttons); i += cols {
		end := i + cols
		if end > len(r.Buttons) {
			end = len(r.Buttons)
		}
		rows = append(rows, r.Buttons[i:end])
	}
	return rows
}
