package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// MenuOption is one numbered choice rendered for a text-only transport.
type MenuOption struct {
	Label string
	// Data is the callback token of an inline button; empty for keyboard labels.
	Data string
}

// MenuTracker renders inline buttons and reply keyboards as numbered text
// for transports without native menus, and maps a numeric answer back to
// the choice it stands for. Only the most recent menu per chat is kept.
type MenuTracker struct {
	mu      sync.Mutex
	pending map[string][]MenuOption
}

// NewMenuTracker creates an empty MenuTracker.
func NewMenuTracker() *MenuTracker {
	return &MenuTracker{pending: make(map[string][]MenuOption)}
}

// Render returns the text to send for r and remembers its options for chatID.
// A reply without options forgets the previous menu.
func (m *MenuTracker) Render(chatID string, r models.Reply) string {
	var opts []MenuOption
	for _, b := range r.Buttons {
		opts = append(opts, MenuOption{Label: b.Label, Data: b.Data})
	}
	for _, row := range r.Keyboard {
		for _, label := range row {
			opts = append(opts, MenuOption{Label: label})
		}
	}

	m.mu.Lock()
	if len(opts) == 0 {
		delete(m.pending, chatID)
	} else {
		m.pending[chatID] = opts
	}
	m.mu.Unlock()

	if len(opts) == 0 {
		return r.Text
	}
	var b strings.Builder
	b.WriteString(r.Text)
	b.WriteString("\n")
	for i, o := range opts {
		fmt.Fprintf(&b, "\n%d. %s", i+1, o.Label)
	}
	b.WriteString("\n\nReply with a number.")
	return b.String()
}

// Resolve maps a numeric answer to the pending option for chatID.
func (m *MenuTracker) Resolve(chatID, text string) (MenuOption, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 {
		return MenuOption{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	opts := m.pending[chatID]
	if n > len(opts) {
		return MenuOption{}, false
	}
	return opts[n-1], true
}

// textEvent builds the event for an inbound message on a text-only
// transport: a numbered menu answer becomes a callback or the keyboard
// label, a leading slash becomes a command. Text transports have no
// callback ids, so CallbackID carries the chat id.
func (m *MenuTracker) textEvent(evt models.Event) models.Event {
	if opt, ok := m.Resolve(evt.ChatID, evt.Text); ok {
		if opt.Data != "" {
			evt.Kind = models.EventCallback
			evt.Data = opt.Data
			evt.CallbackID = evt.ChatID
			evt.Text = ""
			return evt
		}
		evt.Text = opt.Label
	}
	if cmd, ok := ParseCommand(evt.Text); ok {
		evt.Kind = models.EventCommand
		evt.Command = cmd
		return evt
	}
	if evt.Kind == "" {
		evt.Kind = models.EventText
	}
	return evt
}
