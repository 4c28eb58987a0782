package alert

import (
	"context"

	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/models"
)

// Inbox is a user's view of the alerts addressed to them.
type Inbox struct {
	store *database.Store
	clock clock.Clock
}

func NewInbox(store *database.Store, c clock.Clock) *Inbox {
	return &Inbox{store: store, clock: c}
}

// List returns the user's alerts, newest first.
func (h *Inbox) List(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Alert, error) {
	return h.store.ListAlerts(ctx, database.AlertFilter{
		RecipientID: userID,
		UnreadOnly:  unreadOnly,
		Limit:       limit,
	})
}

// ForInstance returns every alert raised for an instance.
func (h *Inbox) ForInstance(ctx context.Context, instanceID uint) ([]models.Alert, error) {
	return h.store.ListAlerts(ctx, database.AlertFilter{InstanceID: instanceID})
}

func (h *Inbox) MarkRead(ctx context.Context, userID, alertID uint) error {
	return h.store.MarkAlertRead(ctx, alertID, userID, h.clock.Now())
}

func (h *Inbox) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return h.store.MarkAllRead(ctx, userID, h.clock.Now())
}

// UnreadCritical counts unread overdue alerts across all users.
func (h *Inbox) UnreadCritical(ctx context.Context) (int64, error) {
	return h.store.CountUnreadCritical(ctx)
}
