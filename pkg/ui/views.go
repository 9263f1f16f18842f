package ui

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/matching"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
)

// Message bodies are sent with HTML parse mode.

const (
	BotUsername   = "AlexOratorBot"
	greetingText  = "Hi! I found you via @" + BotUsername
	writeButton   = "✉️ Write in Telegram"
	confirmButton = "✅ Confirm"
	cancelButton  = "❌ Cancel"
)

// UserLink renders a mention: @username when known, otherwise a tg:// link
// on the escaped first name.
func UserLink(u db.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.TelegramID, html.EscapeString(firstName(u)))
}

// WriteURL opens a chat with u prefilled with a greeting.
func WriteURL(u db.User) string {
	text := url.PathEscape(greetingText)
	if u.Username != "" {
		return "https://t.me/" + u.Username + "?text=" + text
	}
	return "tg://user?id=" + strconv.FormatInt(u.TelegramID, 10) + "&text=" + text
}

func firstName(u db.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if name := u.DisplayName(); name != "" {
		return name
	}
	return "participant"
}

// RenderPairProposal is sent to the invited participant of a new pair.
func RenderPairProposal(pairID string, proposer db.User) (string, *queue.ActionPayload, error) {
	confirmData, err := BuildConfirmPairCallback(pairID)
	if err != nil {
		return "", nil, err
	}
	cancelData, err := BuildCancelPairCallback(pairID)
	if err != nil {
		return "", nil, err
	}
	text := fmt.Sprintf("You have been paired with %s %s for this week's practice.",
		html.EscapeString(firstName(proposer)), UserLink(proposer))
	keyboard := queue.Keyboard(queue.Row(
		queue.Button{Text: confirmButton, CallbackData: confirmData},
		queue.Button{Text: cancelButton, CallbackData: cancelData},
	))
	return text, keyboard, nil
}

// RenderPairConfirmedForPartner tells the other participant that actor
// confirmed the pair.
func RenderPairConfirmedForPartner(actor db.User) string {
	return fmt.Sprintf("Your pair with %s %s is confirmed. Start practising!",
		html.EscapeString(firstName(actor)), UserLink(actor))
}

// RenderPairConfirmedForActor answers the confirming participant with a
// button that opens a chat with the partner.
func RenderPairConfirmedForActor(partner db.User) (string, *queue.ActionPayload) {
	text := fmt.Sprintf("You confirmed the pair with %s %s. Start practising!",
		html.EscapeString(firstName(partner)), UserLink(partner))
	return text, queue.Keyboard(queue.Row(queue.Button{Text: writeButton, URL: WriteURL(partner)}))
}

func RenderPairCancelled(actor db.User) string {
	return fmt.Sprintf("Your pair with %s was cancelled. Try finding another partner.",
		html.EscapeString(firstName(actor)))
}

// RenderCandidateOffer lists proposed partners with one pick button each.
func RenderCandidateOffer(weekKey string, candidates []matching.CandidateScore) (string, *queue.ActionPayload, error) {
	if len(candidates) == 0 {
		findData, err := BuildFindCallback(false)
		if err != nil {
			return "", nil, err
		}
		text := fmt.Sprintf("No partners are available for the week of %s yet.", weekKey)
		return text, queue.Keyboard(queue.Row(queue.Button{Text: "🔄 Try again", CallbackData: findData})), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Suggested partners for the week of %s:\n", weekKey)
	rows := make([][]queue.Button, 0, len(candidates))
	for i, c := range candidates {
		name := c.Name
		if name == "" {
			name = "participant"
		}
		fmt.Fprintf(&b, "\n%d. %s, %s, %d sessions, %d%% match",
			i+1, html.EscapeString(name), c.PreferredTime, c.TotalSessions, int(c.Score*100+0.5))
		if len(c.Topics) > 0 {
			fmt.Fprintf(&b, "\n   %s", html.EscapeString(strings.Join(c.Topics, ", ")))
		}
		pickData, err := BuildPickCandidateCallback(c.UserID)
		if err != nil {
			return "", nil, err
		}
		rows = append(rows, queue.Row(queue.Button{Text: fmt.Sprintf("Pair with %s", name), CallbackData: pickData}))
	}
	return b.String(), queue.Keyboard(rows...), nil
}
