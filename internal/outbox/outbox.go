// Package outbox implements the Outbox Notifier (spec §4.9): a lease-based
// claim loop over notifications_outbox that delivers each row to the chat
// surface at-least-once, with crash recovery via lease expiry.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"raptor/internal/chatsurface"
	"raptor/internal/models"
	"raptor/internal/store"
)

// leaser is the slice of *store.Store the notifier depends on.
type leaser interface {
	ClaimNotifications(ctx context.Context, workerID string, limit int, leaseDuration time.Duration) ([]*models.Notification, error)
	MarkNotificationDelivered(ctx context.Context, id int64, workerID string) error
	MarkNotificationFailed(ctx context.Context, id int64, workerID, lastError string) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

// Config holds the notifier's polling knobs.
type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	ClaimLimit    int
	LeaseDuration time.Duration
}

// Notifier claims and delivers outbox rows.
type Notifier struct {
	store   leaser
	surface chatsurface.Surface
	cfg     Config
	logger  *zap.Logger
}

// New builds a Notifier bound to one worker identity.
func New(st *store.Store, surface chatsurface.Surface, cfg Config, logger *zap.Logger) *Notifier {
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 10
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	return &Notifier{store: st, surface: surface, cfg: cfg, logger: logger}
}

// Run polls on cfg.PollInterval until ctx is canceled.
func (n *Notifier) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.tick(ctx); err != nil {
				n.logger.Error("outbox: tick failed", zap.Error(err))
			}
		}
	}
}

func (n *Notifier) tick(ctx context.Context) error {
	rows, err := n.store.ClaimNotifications(ctx, n.cfg.WorkerID, n.cfg.ClaimLimit, n.cfg.LeaseDuration)
	if err != nil {
		return err
	}
	for _, row := range rows {
		n.deliver(ctx, row)
	}
	return nil
}

// deliver sends one claimed row and finalizes it per spec §4.9 step 2.
func (n *Notifier) deliver(ctx context.Context, row *models.Notification) {
	user, err := n.store.GetUser(ctx, row.UserID)
	if err != nil {
		n.fail(ctx, row, "load user: "+err.Error())
		return
	}

	if err := n.surface.Deliver(ctx, user.ChatID, row); err != nil {
		n.fail(ctx, row, err.Error())
		return
	}

	if err := n.store.MarkNotificationDelivered(ctx, row.ID, n.cfg.WorkerID); err != nil {
		n.logger.Error("outbox: mark delivered", zap.Int64("notification_id", row.ID), zap.Error(err))
	}
}

func (n *Notifier) fail(ctx context.Context, row *models.Notification, errText string) {
	n.logger.Warn("outbox: delivery failed", zap.Int64("notification_id", row.ID), zap.String("type", row.Type), zap.String("error", errText))
	if err := n.store.MarkNotificationFailed(ctx, row.ID, n.cfg.WorkerID, errText); err != nil {
		n.logger.Error("outbox: mark failed", zap.Int64("notification_id", row.ID), zap.Error(err))
	}
}
