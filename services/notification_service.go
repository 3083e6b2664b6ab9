package services

import (
	"context"
	"errors"

	"github.com/rallyrank/rallyrank-api/models"
	"github.com/rallyrank/rallyrank-api/repositories"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationService is the read side of the notification inbox; writes
// come from the Notifier inside other services' transactions.
type NotificationService struct {
	notifications repositories.NotificationRepository
}

func NewNotificationService(notifications repositories.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

func (s *NotificationService) List(ctx context.Context, userID int, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.notifications.ListByUser(ctx, nil, userID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int) (int, error) {
	return s.notifications.UnreadCount(ctx, nil, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID int) error {
	err := s.notifications.MarkRead(ctx, nil, id, userID)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int) error {
	return s.notifications.MarkAllRead(ctx, nil, userID)
}
