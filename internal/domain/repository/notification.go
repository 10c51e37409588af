package repository

import (
	"context"

	"github.com/polkiloo/jobber/internal/domain/model"
)

// NotificationRepository persists order notifications.
type NotificationRepository interface {
	// Create stores n once; a replay with the same id returns ErrAlreadyProcessed.
	Create(ctx context.Context, n model.Notification) (*model.Notification, error)
	ListByRecipient(ctx context.Context, userTo string) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, notificationID string) (*model.Notification, error)
}
