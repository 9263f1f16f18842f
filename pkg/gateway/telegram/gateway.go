// Package telegram delivers queued notifications through the Telegram Bot
// API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/as3contender/alex-orator-bot/pkg/queue"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// Telegram allows about 30 messages per second per bot.
const DefaultRateLimit = 25

type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Gateway struct {
	sender  Sender
	limiter *rate.Limiter
}

// New connects a bot client. A non-positive perSecond disables throttling.
func New(token string, perSecond float64, opts ...bot.Option) (*Gateway, error) {
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram client: %w", err)
	}
	return NewWithSender(b, perSecond), nil
}

func NewWithSender(sender Sender, perSecond float64) *Gateway {
	limit, burst := rate.Inf, 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = max(1, int(perSecond))
	}
	return &Gateway{sender: sender, limiter: rate.NewLimiter(limit, burst)}
}

func (g *Gateway) Send(ctx context.Context, msg queue.Message) error {
	chatID, err := strconv.ParseInt(msg.RecipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", msg.RecipientID, err)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      msg.Body,
		ParseMode: models.ParseModeHTML,
	}
	if kb := Keyboard(msg.Action); kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := g.sender.SendMessage(ctx, params); err != nil {
		if errors.Is(err, bot.ErrorForbidden) {
			logger.Warn("recipient blocked the bot", "recipient_id", msg.RecipientID)
		}
		return err
	}
	return nil
}

// Keyboard converts a queued action payload into Telegram markup; nil when
// there is nothing to attach.
func Keyboard(action *queue.ActionPayload) *models.InlineKeyboardMarkup {
	if action == nil || len(action.InlineKeyboard) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(action.InlineKeyboard))
	for _, row := range action.InlineKeyboard {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{
				Text:         b.Text,
				CallbackData: b.CallbackData,
				URL:          b.URL,
			})
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
