// Package chatsurface is the concrete (but spec-abstract, §6) chat delivery
// implementation the Outbox Notifier calls through the Surface interface.
// The chat front-end's user I/O is out of scope (spec §1 Out of scope); this
// package only grounds the "deliver a typed event to a chat" collaborator as
// a real, swappable adapter rather than a stub.
package chatsurface

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"raptor/internal/models"
)

// Surface is what the Outbox Notifier depends on to deliver one notification.
// Each payload is self-contained (spec §6: "the renderer need not query the
// store for required fields"), so Deliver never needs to look anything up.
type Surface interface {
	Deliver(ctx context.Context, chatID int64, n *models.Notification) error
}

// Telegram delivers notifications as chat messages via the Telegram Bot API,
// grounded on the teacher's telegram-bot-api dependency declared for the
// chat front-end this subsystem fronts.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegram builds a Telegram surface from a bot token.
func NewTelegram(token string, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("chatsurface: new bot api: %w", err)
	}
	return &Telegram{bot: bot, logger: logger}, nil
}

// Deliver renders n's typed payload into a message and sends it to chatID.
// Delivery is at-least-once (spec §4.9 step 3); the chat surface owns
// deduplication of edits and may ignore late duplicates, which for a plain
// SendMessage call means simply accepting a harmless repeat message on retry.
func (t *Telegram) Deliver(ctx context.Context, chatID int64, n *models.Notification) error {
	msg := tgbotapi.NewMessage(chatID, render(n))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("chatsurface: send: %w", err)
	}
	return nil
}

// render formats one event kind into its user-visible text (spec §6: typed
// by event kind, e.g. POSITION_OPENED, SELL_CONFIRMED).
func render(n *models.Notification) string {
	switch n.Type {
	case models.EventBuyConfirmed:
		return fmt.Sprintf("Bought %v of `%v` — tx `%v`", n.Payload["amount_sol"], n.Payload["mint"], n.Payload["tx_sig"])
	case models.EventPositionOpened:
		return fmt.Sprintf("Position opened on `%v`", n.Payload["mint"])
	case models.EventSellConfirmed:
		return fmt.Sprintf("Sold `%v` (%v) — realized %v SOL — tx `%v`", n.Payload["mint"], n.Payload["trigger"], n.Payload["realized_sol"], n.Payload["tx_sig"])
	case models.EventPositionClosed:
		return fmt.Sprintf("Position closed on `%v`", n.Payload["mint"])
	case models.EventEmergencySell:
		return fmt.Sprintf("Emergency sell started on `%v`", n.Payload["mint"])
	case models.EventEmergencySellOK:
		return fmt.Sprintf("Emergency sell confirmed on `%v`", n.Payload["mint"])
	case models.EventEmergencySellNo:
		return fmt.Sprintf("Emergency sell failed on `%v`: %v", n.Payload["mint"], n.Payload["error"])
	case models.EventTradeFailed:
		return fmt.Sprintf("Trade failed: %v", n.Payload["message"])
	case models.EventBudgetDenied:
		return fmt.Sprintf("Trade denied: %v", n.Payload["reason"])
	default:
		return fmt.Sprintf("%s: %v", n.Type, n.Payload)
	}
}
