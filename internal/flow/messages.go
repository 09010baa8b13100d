package flow

// User-facing texts of the dialogues.
const (
	msgEmptyAnswer       = "Please send a short text answer."
	msgAcceptChallenge   = "You accepted the %s challenge! Answer two quick questions."
	msgAlreadyCompleted  = "You already completed this challenge today."
	msgSummaryFallback   = "Great work today. Small steps every day add up to big changes."
	msgPointsReceived    = "You earned %d points. Your new total is %d."
	msgChallengeComplete = "Well done! Want to take on another challenge today?"

	msgGoalPrompt = "Write down your main goal for this month."
	msgGoalSaved  = "Got it. Your goal for this month is saved."

	msgItemTitlePrompt   = "Send the title of the new book."
	msgItemCostPrompt    = "How many points does this book cost?"
	msgItemPayloadPrompt = "Send the PDF file, or a link to it."
	msgInvalidCost       = "The point cost must be a whole number of zero or more."
	msgInvalidPayload    = "That is neither a file nor an http(s) link."
	msgItemAdded         = "Added %q for %d points to the shop."
)
