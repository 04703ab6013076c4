package models

import "time"

// Notification (outbox) statuses.
const (
	NotificationPending = "pending"
	NotificationSending = "sending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification event kinds (spec §6 "Chat surface").
const (
	EventPositionOpened  = "POSITION_OPENED"
	EventPositionClosed  = "POSITION_CLOSED"
	EventSellConfirmed   = "SELL_CONFIRMED"
	EventBuyConfirmed    = "BUY_CONFIRMED"
	EventEmergencySell   = "EMERGENCY_SELL_STARTED"
	EventEmergencySellOK = "EMERGENCY_SELL_CONFIRMED"
	EventEmergencySellNo = "EMERGENCY_SELL_FAILED"
	EventTradeFailed     = "TRADE_FAILED"
	EventBudgetDenied    = "BUDGET_DENIED"
)

// Notification is an append-only outbox row. Only `pending` with
// (sending_expires_at IS NULL OR < now()) is claimable.
type Notification struct {
	ID               int64      `json:"id" db:"id"`
	UserID           int64      `json:"user_id" db:"user_id"`
	Type             string     `json:"type" db:"type"`
	Payload          JSONMap    `json:"payload" db:"payload"`
	Status           string     `json:"status" db:"status"`
	Attempts         int        `json:"attempts" db:"attempts"`
	MaxAttempts      int        `json:"max_attempts" db:"max_attempts"`
	SendingExpiresAt *time.Time `json:"sending_expires_at,omitempty" db:"sending_expires_at"`
	WorkerID         string     `json:"worker_id,omitempty" db:"worker_id"`
	LastError        string     `json:"last_error,omitempty" db:"last_error"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	SentAt           *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// Claimable mirrors TradeJob.Claimable for the notification lease.
func (n *Notification) Claimable(now time.Time) bool {
	if n.Status != NotificationPending {
		return false
	}
	return n.SendingExpiresAt == nil || !n.SendingExpiresAt.After(now)
}
