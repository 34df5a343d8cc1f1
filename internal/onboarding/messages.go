// ABOUTME: User-facing message copy for the onboarding flow.
// ABOUTME: One place to edit so tone stays consistent across steps.

package onboarding

const (
	msgWelcome = "Welcome to the trendingmints bot where you get instant alerts when mints start trending."

	msgAlreadySubscribed = "You are already subscribed. If you wish to stop receiving updates, you can unsubscribe at any time by sending 'stop' or update your options."

	msgPreferencePrompt = "How often would you like me to send you new mints?\n\n1️⃣ Right away - let me know once it starts trending;\n2️⃣ Once a day - send me the top 2 of the day.\n\n✍️ (reply with 1 or 2)"

	msgInvalidOption = "Invalid option selected. Please enter a valid option (1 or 2)\n\nIf you'd like to restart the bot, you can do so at any time by saying 'stop'."

	msgConfirmed = "Great. You're all set."

	msgRightAwayTeaser = "I'll grab you the top 2 trending today, and send them your way. Give me a few minutes."

	msgOnceADayTeaser = "Since you're just getting caught up, I'll grab you the top 2 trending today, and send them your way. Give me a few minutes."

	msgUnsubscribeHint = "Also, if you'd like to unsubscribe, you can do so at any time by saying 'stop'."

	msgUnsubscribed = "You unsubscribed successfully. You can always subscribe again by sending a message."

	msgNotSubscribed = "You are not subscribed yet. You can subscribe by sending a message and selecting the correct option."

	msgOneShotAnnouncement = "🚀 Here some trending mints to give you a taste of what I can do! Check them out now."
)
