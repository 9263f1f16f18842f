// Package handlers wires Telegram updates to registration, matching and
// pairing.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/errs"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/matching"
	"github.com/as3contender/alex-orator-bot/pkg/pairing"
	"github.com/as3contender/alex-orator-bot/pkg/proposals"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/as3contender/alex-orator-bot/pkg/ui"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gorm.io/gorm"
)

const genericFailure = "Something went wrong. Please try again later."

type Deps struct {
	DB            *gorm.DB
	Registrations *registration.Service
	Pairs         *pairing.Manager
	Proposals     *proposals.Service
	Matcher       *matching.Matcher
	Now           func() time.Time
}

type Handlers struct {
	Deps
}

func New(deps Deps) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handlers{Deps: deps}
}

// Register attaches every command and the callback router to b.
func (h *Handlers) Register(b *bot.Bot) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, h.HandleStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/register", bot.MatchTypePrefix, h.HandleRegister)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/unregister", bot.MatchTypePrefix, h.HandleUnregister)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/find", bot.MatchTypePrefix, h.HandleFind)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/pairs", bot.MatchTypeExact, h.HandlePairs)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact, h.HandleStats)
	for _, kind := range []ui.Kind{ui.KindPair, ui.KindCandidate, ui.KindFind} {
		b.RegisterHandler(bot.HandlerTypeCallbackQueryData, string(kind)+":", bot.MatchTypePrefix, h.HandleCallback)
	}
}

func (h *Handlers) ensureUser(ctx context.Context, from *models.User) (*db.User, error) {
	return h.Registrations.EnsureUser(ctx, db.User{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
}

// userMessage turns a domain error into the text shown to the user who
// pressed a button or sent a command.
func userMessage(err error, missing string) string {
	switch errs.RuleOf(err) {
	case errs.RuleQuotaExceeded:
		return "You or your partner are already at the pairing limit for this week."
	case errs.RuleDuplicatePair:
		return "This pair already exists."
	case errs.RuleSelfPair:
		return "You cannot pair with yourself."
	case errs.RuleRegistrationInactive:
		return "Register for the week first with /register."
	case errs.RuleAlreadyRegistered:
		return "You are already registered for this week."
	case errs.RuleNotParticipant:
		return "This pair belongs to other participants."
	case errs.RulePairCancelled:
		return "This pair was already cancelled."
	case errs.RuleNotOffered:
		return "This partner was not in your latest suggestions."
	case errs.RuleInvalidInput:
		var ce *errs.ConstraintError
		if errors.As(err, &ce) && ce.Detail != "" {
			return "Invalid input: " + ce.Detail
		}
		return "Invalid input."
	}
	if errors.Is(err, errs.ErrNotFound) {
		return missing
	}
	return genericFailure
}

func reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

func validMessage(update *models.Update) bool {
	return update != nil && update.Message != nil && update.Message.From != nil && update.Message.Chat.ID != 0
}
