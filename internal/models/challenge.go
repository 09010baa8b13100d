package models

import (
	"fmt"
	"strings"
)

// Question is one prompt of a challenge flow and the answer field it fills.
type Question struct {
	Field  string // key under which the answer is stored
	Prompt string // question sent to the user
	Label  string // caption used when the answer is shown back
}

// ChallengeType declares a challenge: its questions in order and how to ask
// the text generator for a motivational summary of the answers.
type ChallengeType struct {
	ID        string
	Label     string
	Questions []Question
	// Summary is a fmt template; answers are substituted in Questions order.
	Summary string
}

// Challenge type identifiers
const (
	ChallengeReading      = "reading"
	ChallengeExercise     = "exercise"
	ChallengeVideoJournal = "video-journal"
)

var challengeTypes = []ChallengeType{
	{
		ID:    ChallengeReading,
		Label: "📚 Reading",
		Questions: []Question{
			{Field: "book", Prompt: "Which book did you read?", Label: "Book"},
			{Field: "benefit", Prompt: "What did you get out of that book?", Label: "Benefit"},
		},
		Summary: "You are a self-improvement bot. A user just completed a reading challenge. " +
			"They read the book '%s' and got the benefit '%s'. Based on the book's topic and the user's benefit, " +
			"write a short, personalized motivational summary. End with a quote.",
	},
	{
		ID:    ChallengeExercise,
		Label: "🏃 Exercise",
		Questions: []Question{
			{Field: "type", Prompt: "What exercise did you do?", Label: "Exercise"},
			{Field: "benefit", Prompt: "What did you get out of that exercise?", Label: "Benefit"},
		},
		Summary: "You are a self-improvement bot. A user just completed an exercise challenge. " +
			"They did the exercise '%s' and got the benefit '%s'. Based on the exercise type and the user's benefit, " +
			"write a short, personalized motivational summary. End with a quote.",
	},
	{
		ID:    ChallengeVideoJournal,
		Label: "🎥 Video journal",
		Questions: []Question{
			{Field: "reflection", Prompt: "What did you talk about in today's video?", Label: "Topic"},
			{Field: "benefit", Prompt: "What did you get out of recording it?", Label: "Benefit"},
		},
		Summary: "You are a self-improvement bot. A user just completed a video journal challenge. " +
			"They reflected on '%s' and got the benefit '%s'. Based on their reflection and benefit, " +
			"write a short, personalized motivational summary. End with a quote.",
	},
}

// ChallengeTypes returns the registered challenge types in menu order.
func ChallengeTypes() []ChallengeType {
	out := make([]ChallengeType, len(challengeTypes))
	copy(out, challengeTypes)
	return out
}

// LookupChallenge finds a challenge type by id.
func LookupChallenge(id string) (ChallengeType, bool) {
	for _, c := range challengeTypes {
		if c.ID == id {
			return c, true
		}
	}
	return ChallengeType{}, false
}

// SummaryPrompt renders the generation prompt for a completed challenge.
func (c ChallengeType) SummaryPrompt(answers map[string]string) string {
	args := make([]any, 0, len(c.Questions))
	for _, q := range c.Questions {
		args = append(args, answers[q.Field])
	}
	return fmt.Sprintf(c.Summary, args...)
}

// Describe renders recorded answers as "- Label: value" lines.
func (c ChallengeType) Describe(answers map[string]string) string {
	var b strings.Builder
	for _, q := range c.Questions {
		fmt.Fprintf(&b, "- %s: %s\n", q.Label, answers[q.Field])
	}
	return b.String()
}
