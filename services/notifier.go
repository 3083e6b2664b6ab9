package services

import (
	"context"
	"log/slog"

	"github.com/rallyrank/rallyrank-api/brackets"
	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

// Broadcaster is the realtime fan-out contract; *brackets.Hub satisfies it.
type Broadcaster interface {
	BroadcastCourt(courtID int, event brackets.Event)
}

// Notifier persists notification rows inside the caller's transaction and
// pushes realtime events after commit. Broadcast delivery is best effort
// and never influences the transaction outcome.
type Notifier struct {
	notifications repositories.NotificationRepository
	hub           Broadcaster
	logger        *slog.Logger
}

func NewNotifier(notifications repositories.NotificationRepository, hub Broadcaster, logger *slog.Logger) *Notifier {
	return &Notifier{notifications: notifications, hub: hub, logger: logger}
}

// Notify writes one notification row. Runs inside the caller's transaction
// so the row commits atomically with the state change it describes.
func (n *Notifier) Notify(ctx context.Context, exec repositories.SQLExecutor, userID int, kind models.NotificationKind, content string, referenceID *int) error {
	notification := &models.Notification{
		UserID:      userID,
		Kind:        kind,
		Content:     content,
		ReferenceID: referenceID,
	}
	return n.notifications.Create(ctx, exec, notification)
}

// NotifyAll fans one notification out to several users.
func (n *Notifier) NotifyAll(ctx context.Context, exec repositories.SQLExecutor, userIDs []int, kind models.NotificationKind, content string, referenceID *int) error {
	for _, id := range userIDs {
		if err := n.Notify(ctx, exec, id, kind, content, referenceID); err != nil {
			return err
		}
	}
	return nil
}

// BroadcastRanked pushes a ranked_update event to the court room. Call
// after the transaction has committed.
func (n *Notifier) BroadcastRanked(courtID int, reason string) {
	if n.hub == nil {
		return
	}
	n.hub.BroadcastCourt(courtID, brackets.Event{Type: brackets.TopicRankedUpdate, Reason: reason})
}

// BroadcastNotifications pushes a notification_update event to the court
// room so clients refresh their inboxes.
func (n *Notifier) BroadcastNotifications(courtID int, reason string) {
	if n.hub == nil {
		return
	}
	n.hub.BroadcastCourt(courtID, brackets.Event{Type: brackets.TopicNotificationUpdate, Reason: reason})
}
