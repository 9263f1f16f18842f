package handlers

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/db"
	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/registration"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = "Commands:\n" +
	"/register [next] HH:MM Topic - Level; Topic - Level: join this (or next) week\n" +
	"/unregister [next]: leave the week\n" +
	"/find [next]: suggest practice partners\n" +
	"/pairs: your pairs this week\n" +
	"/stats: this week's activity"

func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleStart")
		return
	}
	user, err := h.ensureUser(ctx, update.Message.From)
	if err != nil {
		logger.Error("failed to register user", "telegram_id", update.Message.From.ID, "error", err)
		reply(ctx, b, update.Message.Chat.ID, genericFailure)
		return
	}
	reply(ctx, b, update.Message.Chat.ID,
		fmt.Sprintf("Welcome, %s! I pair speakers for weekly practice.\n\n%s", html.EscapeString(user.FirstName), html.EscapeString(helpText)))
}

// commandArgs drops the command word and an optional leading "next",
// returning the week the command targets.
func (h *Handlers) commandArgs(text string) (registration.Week, string) {
	_, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	rest = strings.TrimSpace(rest)
	now := h.Now()
	if head, tail, _ := strings.Cut(rest, " "); strings.EqualFold(head, "next") {
		return registration.NextWeek(now), strings.TrimSpace(tail)
	}
	return registration.CurrentWeek(now), rest
}

func parseTopics(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (h *Handlers) HandleRegister(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleRegister")
		return
	}
	chatID := update.Message.Chat.ID
	week, args := h.commandArgs(update.Message.Text)
	preferred, topicList, _ := strings.Cut(args, " ")
	topicPaths := parseTopics(topicList)
	if preferred == "" || len(topicPaths) == 0 {
		reply(ctx, b, chatID, "Usage: /register [next] HH:MM Topic - Level; Topic - Level")
		return
	}

	user, err := h.ensureUser(ctx, update.Message.From)
	if err != nil {
		logger.Error("failed to register user", "telegram_id", update.Message.From.ID, "error", err)
		reply(ctx, b, chatID, genericFailure)
		return
	}
	if _, err := h.Registrations.Register(ctx, user.ID, week.Start, preferred, topicPaths); err != nil {
		logger.Info("registration rejected", "user_id", user.ID, "week", week.Key(), "error", err)
		reply(ctx, b, chatID, html.EscapeString(userMessage(err, genericFailure)))
		return
	}
	reply(ctx, b, chatID, fmt.Sprintf("You are registered for %s to %s at %s. Use /find to get partner suggestions.",
		week.Key(), week.End.Format(time.DateOnly), preferred))
}

func (h *Handlers) HandleUnregister(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleUnregister")
		return
	}
	chatID := update.Message.Chat.ID
	week, _ := h.commandArgs(update.Message.Text)
	user, err := h.ensureUser(ctx, update.Message.From)
	if err != nil {
		logger.Error("failed to register user", "telegram_id", update.Message.From.ID, "error", err)
		reply(ctx, b, chatID, genericFailure)
		return
	}
	cancelled, err := h.Registrations.Cancel(ctx, user.ID, week.Start)
	if err != nil {
		logger.Error("failed to cancel registration", "user_id", user.ID, "error", err)
		reply(ctx, b, chatID, genericFailure)
		return
	}
	if !cancelled {
		reply(ctx, b, chatID, "You are not registered for the week of "+week.Key()+".")
		return
	}
	reply(ctx, b, chatID, "Your registration for the week of "+week.Key()+" is cancelled.")
}

func (h *Handlers) HandleFind(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleFind")
		return
	}
	week, _ := h.commandArgs(update.Message.Text)
	user, err := h.ensureUser(ctx, update.Message.From)
	if err != nil {
		logger.Error("failed to register user", "telegram_id", update.Message.From.ID, "error", err)
		reply(ctx, b, update.Message.Chat.ID, genericFailure)
		return
	}
	if _, err := h.Proposals.Offer(ctx, user.ID, week.Start); err != nil {
		logger.Info("candidate search failed", "user_id", user.ID, "error", err)
		reply(ctx, b, update.Message.Chat.ID, html.EscapeString(userMessage(err, genericFailure)))
	}
}

func (h *Handlers) HandlePairs(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandlePairs")
		return
	}
	chatID := update.Message.Chat.ID
	user, err := h.ensureUser(ctx, update.Message.From)
	if err != nil {
		logger.Error("failed to register user", "telegram_id", update.Message.From.ID, "error", err)
		reply(ctx, b, chatID, genericFailure)
		return
	}
	week := registration.CurrentWeek(h.Now())
	pairs, err := h.Pairs.ListForUser(ctx, user.ID, week.Start)
	if err != nil {
		logger.Error("failed to list pairs", "user_id", user.ID, "error", err)
		reply(ctx, b, chatID, genericFailure)
		return
	}
	if len(pairs) == 0 {
		reply(ctx, b, chatID, "You have no pairs for the week of "+week.Key()+". Try /find.")
		return
	}

	partnerIDs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		partnerIDs = append(partnerIDs, p.Partner(user.ID))
	}
	var partners []db.User
	if err := h.DB.WithContext(ctx).Where("id IN ?", partnerIDs).Find(&partners).Error; err != nil {
		logger.Error("failed to load partners", "user_id", user.ID, "error", err)
		reply(ctx, b, chatID, genericFailure)
		return
	}
	names := make(map[string]string, len(partners))
	for _, p := range partners {
		names[p.ID] = p.DisplayName()
	}

	var sb strings.Builder
	sb.WriteString("Your pairs for the week of " + week.Key() + ":")
	for _, p := range pairs {
		fmt.Fprintf(&sb, "\n• %s (%s)", html.EscapeString(names[p.Partner(user.ID)]), p.Status)
	}
	reply(ctx, b, chatID, sb.String())
}

func (h *Handlers) HandleStats(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		logger.Error("invalid update in HandleStats")
		return
	}
	week := registration.CurrentWeek(h.Now())
	stats, err := h.Matcher.Stats(ctx, week.Start)
	if err != nil {
		logger.Error("failed to load stats", "error", err)
		reply(ctx, b, update.Message.Chat.ID, genericFailure)
		return
	}
	reply(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"Week of %s: %d registered, %d pairs, %d confirmed (%.0f%%).",
		week.Key(), stats.TotalRegistrations, stats.TotalPairs, stats.ConfirmedPairs, stats.ConfirmationRate))
}

func (h *Handlers) HandleDefault(ctx context.Context, b *bot.Bot, update *models.Update) {
	if !validMessage(update) {
		return
	}
	reply(ctx, b, update.Message.Chat.ID, html.EscapeString(helpText))
}
