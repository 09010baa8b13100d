package bot

import "github.com/kyawsoe1992/G-T24-7bot/internal/models"

// Main menu labels. Text messages equal to a label trigger its handler.
const (
	LabelChooseChallenge = "➕ Choose a challenge"
	LabelSetGoal         = "🎯 Set monthly goal"
	LabelDailyLog        = "📖 Daily log"
	LabelProgress        = "📈 Monthly progress"
	LabelShop            = "💰 Shop"
	LabelMotivation      = "✨ Motivation"
	LabelMood            = "😊 Log my mood"
	LabelCommunity       = "🫂 Join the community"
)

const (
	msgWelcome          = "Welcome to the 24/7 self-improvement challenge! Complete daily challenges, earn points and swap them for books."
	msgMainMenu         = "What would you like to do?"
	msgChooseChallenge  = "Pick today's challenge:"
	msgAlreadyCompleted = "You already completed this challenge today. Try another one!"
	msgPermissionDenied = "Sorry, only the admin can do that."
	msgGenericError     = "Something went wrong. Please try again in a moment."
	msgNoChallengesYet  = "You have not completed any challenges today yet."
	msgDailyTitle       = "*Today's log*"
	msgDailyPoints      = "*Points today:* %d"
	msgTotalPoints      = "*Total points:* %d"
	msgNoGoalSet        = "You have not set a goal for this month yet. Use \"" + LabelSetGoal + "\" first."
	msgProgressTitle    = "*Your progress for %s*"
	msgProgressGoal     = "*Goal:* %s"
	msgProgressDays     = "*Active days:* %d / %d"
	msgProgressPercent  = "*Completion:* %d%%"
	msgShopTitle        = "📚 Books you can redeem with your points:"
	msgShopEmpty        = "The shop is empty right now. Check back later!"
	msgShopRedeemed     = "✅ %s (redeemed)"
	msgShopItem         = "%s (%d points)"
	msgMotivationPrompt = "A user has completed %d challenges and earned %d points today. " +
		"Write one short, personal motivational quote that acknowledges their progress and encourages them to keep going."
	msgMotivationFallback = "Every small step counts. Keep going!"
	msgMoodPrompt         = "How are you feeling today?"
	msgMoodRecorded       = "Thanks! Your mood for today is saved."
	msgCommunity          = "Join our community to share your progress: %s"
	msgCommunityMissing   = "The community link is not available yet."
	msgPoints             = "You have %d points."
	msgLeaderboardTitle   = "*Leaderboard for %s*"
	msgLeaderboardLine    = "%d. %s: %d points"
	msgLeaderboardEmpty   = "Nobody has earned points this month yet."
	msgResume             = "We were interrupted. Let's pick up where we left off."

	// Redemption acknowledgements, shown as alerts.
	msgUnknownItem     = "That book is no longer available."
	msgAlreadyRedeemed = "You already redeemed this book."
	msgCooldownActive  = "You can redeem one book per week. Please try again later."
	msgNotEnoughPoints = "You don't have enough points for this book yet."
	msgRedeemed        = "Done! %q is yours. You have %d points left."
	msgDownloadLink    = "Download it here: %s"

	// Scheduled messages.
	msgReminderPrompt   = "Write one very short, positive sentence (under 20 words) encouraging someone to work on their daily self-improvement challenges."
	msgReminderFallback = "Today is a great day to grow."
	msgDailyReminder    = "⏰ *Daily reminder*\n\n%s\n\nHave you done your challenges today?"
	labelDoChallenge    = "➕ Do a challenge"
	msgWinner           = "🏆 *Challenge winner for %s*\n\nCongratulations %s with %d points! Everyone's points have been reset for the new month."
	msgNoWinner         = "Nobody completed any challenges in %s. A new month, a new start!"
)

// moods lists the mood buttons in display order.
var moods = []models.Button{
	{Label: "😄 Very happy", Data: models.CallbackMood + "happy"},
	{Label: "😊 Good", Data: models.CallbackMood + "good"},
	{Label: "😐 Normal", Data: models.CallbackMood + "normal"},
	{Label: "😔 Sad", Data: models.CallbackMood + "sad"},
}

func validMood(data string) bool {
	for _, m := range moods {
		if m.Data == data {
			return true
		}
	}
	return false
}

// MainMenu is the reply keyboard shown after /start and completed dialogues.
func MainMenu() models.Reply {
	return models.Reply{
		Text: msgMainMenu,
		Keyboard: [][]string{
			{LabelChooseChallenge},
			{LabelSetGoal},
			{LabelDailyLog, LabelProgress},
			{LabelShop, LabelMotivation},
			{LabelMood, LabelCommunity},
		},
	}
}
