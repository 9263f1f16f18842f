package ui

import (
	"strings"
	"testing"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/matching"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
)

func assertButton(t *testing.T, keyboard *queue.ActionPayload, text, callback, link string) {
	t.Helper()
	if keyboard == nil {
		t.Fatalf("expected keyboard with %q", text)
	}
	for _, row := range keyboard.InlineKeyboard {
		for _, button := range row {
			if button.Text == text {
				if button.CallbackData != callback || button.URL != link {
					t.Fatalf("button %q = %+v, want callback %q url %q", text, button, callback, link)
				}
				return
			}
		}
	}
	t.Fatalf("button %q not found in %+v", text, keyboard.InlineKeyboard)
}

func TestUserLinkAndWriteURL(t *testing.T) {
	withName := db.User{TelegramID: 7, Username: "ann", FirstName: "Ann"}
	if got := UserLink(withName); got != "@ann" {
		t.Fatalf("UserLink = %q", got)
	}
	if got := WriteURL(withName); !strings.HasPrefix(got, "https://t.me/ann?text=Hi%21") && !strings.HasPrefix(got, "https://t.me/ann?text=Hi!") {
		t.Fatalf("WriteURL = %q", got)
	}

	anonymous := db.User{TelegramID: 9, FirstName: "<Bob>"}
	if got := UserLink(anonymous); got != `<a href="tg://user?id=9">&lt;Bob&gt;</a>` {
		t.Fatalf("UserLink = %q", got)
	}
	if got := WriteURL(anonymous); !strings.HasPrefix(got, "tg://user?id=9&text=") || strings.Contains(got, " ") {
		t.Fatalf("WriteURL = %q", got)
	}
}

func TestRenderPairProposal(t *testing.T) {
	text, keyboard, err := RenderPairProposal(samplePairID, db.User{TelegramID: 1, Username: "ann", FirstName: "Ann"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "Ann @ann") {
		t.Fatalf("unexpected text %q", text)
	}
	confirmData, _ := BuildConfirmPairCallback(samplePairID)
	cancelData, _ := BuildCancelPairCallback(samplePairID)
	assertButton(t, keyboard, confirmButton, confirmData, "")
	assertButton(t, keyboard, cancelButton, cancelData, "")
}

func TestRenderPairConfirmed(t *testing.T) {
	partner := db.User{TelegramID: 2, Username: "bob", FirstName: "Bob"}
	text, keyboard := RenderPairConfirmedForActor(partner)
	if !strings.Contains(text, "You confirmed the pair with Bob @bob") {
		t.Fatalf("unexpected text %q", text)
	}
	assertButton(t, keyboard, writeButton, "", WriteURL(partner))

	if got := RenderPairConfirmedForPartner(db.User{TelegramID: 3, FirstName: "Cid"}); !strings.Contains(got, "is confirmed") {
		t.Fatalf("unexpected partner text %q", got)
	}
	if got := RenderPairCancelled(db.User{FirstName: "Dan"}); !strings.Contains(got, "Dan was cancelled") {
		t.Fatalf("unexpected cancel text %q", got)
	}
}

func TestRenderCandidateOffer(t *testing.T) {
	candidates := []matching.CandidateScore{
		{Profile: matching.Profile{UserID: "u2", Name: "Bob", PreferredTime: "18:30", Topics: []string{"Storytelling - L1"}}, Score: 0.9},
		{Profile: matching.Profile{UserID: "u3", Name: "Cid", PreferredTime: "19:00", TotalSessions: 4}, Score: 0.66},
	}
	text, keyboard, err := RenderCandidateOffer("2025-03-03", candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "1. Bob, 18:30, 0 sessions, 90% match") || !strings.Contains(text, "2. Cid, 19:00, 4 sessions, 66% match") {
		t.Fatalf("unexpected text %q", text)
	}
	pickBob, _ := BuildPickCandidateCallback("u2")
	assertButton(t, keyboard, "Pair with Bob", pickBob, "")

	empty, keyboard, err := RenderCandidateOffer("2025-03-03", nil)
	if err != nil || !strings.Contains(empty, "No partners") {
		t.Fatalf("unexpected empty offer %q, %v", empty, err)
	}
	findData, _ := BuildFindCallback(false)
	assertButton(t, keyboard, "🔄 Try again", findData, "")
}
