package flow

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/kyawsoe1992/G-T24-7bot/internal/models"
)

// Input is one user message fed to an open dialogue.
type Input struct {
	UserID      string
	ChatID      string
	DisplayName string
	Handle      string
	Text        string
	FileID      string // set when the message carried a document
}

// Outcome is what the caller should send back after a dialogue step.
type Outcome struct {
	Replies []models.Reply
	// ShowMainMenu asks the caller to follow up with the main menu keyboard.
	ShowMainMenu bool
	// Done is true when the dialogue finished on this step.
	Done bool
}

func reply(rs ...models.Reply) Outcome {
	return Outcome{Replies: rs}
}

// InvalidInput rejects an answer. The hint is sent before the question is repeated.
type InvalidInput struct {
	Hint string
}

func (e *InvalidInput) Error() string { return e.Hint }

// Step is one question of a dialogue.
type Step struct {
	Field  string
	Prompt string
	// Accept validates the answer and returns the value to store. A nil
	// Accept stores the trimmed text as is.
	Accept func(in Input) (string, error)
}

func (s Step) accept(in Input) (string, error) {
	if s.Accept != nil {
		return s.Accept(in)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", &InvalidInput{Hint: msgEmptyAnswer}
	}
	return text, nil
}

// Definition declares a dialogue: its questions in order and what happens
// once the last one is answered.
type Definition struct {
	Kind      models.FlowKind
	AdminOnly bool
	// Intro, when set, is sent before the first question.
	Intro string
	Steps []Step
	// Guard runs before the dialogue opens; an error prevents it.
	Guard func(ctx context.Context, m *Machine, userID string) error
	// Complete receives the final state, already removed from the session store.
	Complete func(ctx context.Context, m *Machine, st models.ConversationState, in Input) (Outcome, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.FlowKind]Definition)
)

// Register associates a FlowKind with its Definition.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[def.Kind] = def
}

// Get retrieves the Definition for a FlowKind.
func Get(kind models.FlowKind) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok := registry[kind]
	return def, ok
}

// Register built-in dialogues
func init() {
	for _, c := range models.ChallengeTypes() {
		Register(challengeDefinition(c))
	}
	Register(goalDefinition())
	Register(addItemDefinition())
	slog.Debug("flow: dialogues registered", "count", len(registry))
}

func isInvalidInput(err error) (*InvalidInput, bool) {
	var inv *InvalidInput
	if errors.As(err, &inv) {
		return inv, true
	}
	return nil, false
}

// parseHTTPURL accepts absolute http and https URLs.
func parseHTTPURL(s string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}
