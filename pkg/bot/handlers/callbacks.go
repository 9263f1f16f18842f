package handlers

import (
	"context"

	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/as3contender/alex-orator-bot/pkg/ui"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// HandleCallback routes inline button presses produced by queued
// notifications and candidate offers.
func (h *Handlers) HandleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		logger.Error("invalid update in HandleCallback")
		return
	}
	query := update.CallbackQuery
	answer := func(text string) {
		if query.ID == "" {
			return
		}
		if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            text,
		}); err != nil {
			logger.Error("failed to answer callback query", "error", err)
		}
	}

	action, err := ui.ParseCallbackData(query.Data)
	if err != nil {
		logger.Warn("failed to parse callback", "data", query.Data, "error", err)
		answer("Unknown command")
		return
	}

	user, err := h.ensureUser(ctx, &query.From)
	if err != nil {
		logger.Error("failed to register user", "telegram_id", query.From.ID, "error", err)
		answer(genericFailure)
		return
	}

	switch action.Kind {
	case ui.KindPair:
		var opErr error
		if action.Verb == ui.VerbConfirm {
			_, opErr = h.Pairs.Confirm(ctx, action.ID, user.ID)
		} else {
			_, opErr = h.Pairs.Cancel(ctx, action.ID, user.ID)
		}
		if opErr != nil {
			logger.Info("pair action rejected", "pair_id", action.ID, "verb", action.Verb, "user_id", user.ID, "error", opErr)
			answer(userMessage(opErr, "This pair no longer exists."))
			return
		}
		if action.Verb == ui.VerbConfirm {
			answer("Pair confirmed")
		} else {
			answer("Pair cancelled")
		}
	case ui.KindCandidate:
		if _, err := h.Proposals.Accept(ctx, user.ID, action.ID); err != nil {
			logger.Info("candidate pick rejected", "candidate_id", action.ID, "user_id", user.ID, "error", err)
			answer(userMessage(err, "These suggestions have expired. Use /find again."))
			return
		}
		answer("Invitation sent")
	case ui.KindFind:
		week := registration.CurrentWeek(h.Now())
		if action.Verb == ui.VerbNext {
			week = registration.NextWeek(h.Now())
		}
		if _, err := h.Proposals.Offer(ctx, user.ID, week.Start); err != nil {
			logger.Info("candidate search failed", "user_id", user.ID, "error", err)
			answer(userMessage(err, genericFailure))
			return
		}
		answer("")
	default:
		answer("Unknown command")
	}
}
