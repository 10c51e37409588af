package repository

import (
	"context"
	"time"

	"github.com/polkiloo/jobber/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
type OrderRepository interface {
	// Create stores the order together with its outbox messages.
	Create(ctx context.Context, order model.Order, outbox ...model.OutboxMessage) (*model.Order, error)
	GetByID(ctx context.Context, orderID string) (*model.Order, error)
	// Update replaces the stored order if its version still equals expectedVersion.
	// The outbox messages are stored atomically with the change.
	Update(ctx context.Context, order model.Order, expectedVersion int64, outbox ...model.OutboxMessage) (*model.Order, error)
	Delete(ctx context.Context, orderID string) error
	MarkOrphaned(ctx context.Context, orderID string) error
	ListByBuyer(ctx context.Context, buyerID string) ([]model.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Order, error)
	// ListStale returns crypto orders in the given statuses not updated since olderThan.
	ListStale(ctx context.Context, statuses []model.OrderStatus, olderThan time.Time, limit int) ([]model.Order, error)
	// PendingOutbox returns unpublished messages created before olderThan, oldest first.
	PendingOutbox(ctx context.Context, olderThan time.Time, limit int) ([]model.OutboxMessage, error)
	MarkPublished(ctx context.Context, messageID string) error
}
