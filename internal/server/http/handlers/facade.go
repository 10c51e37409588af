package handlers

import (
	"context"

	"github.com/polkiloo/jobber/internal/domain/model"
)

// OrderService encapsulates order operations exposed via HTTP.
type OrderService interface {
	Create(ctx context.Context, input model.Order) (*model.Order, error)
	ConfirmPayment(ctx context.Context, orderID, transactionHash string, blockNumber uint64) (*model.Order, error)
	ConfirmStandardPayment(ctx context.Context, orderID, paymentReference string) (*model.Order, error)
	Deliver(ctx context.Context, orderID string, work []model.DeliveredWork) (*model.Order, error)
	Complete(ctx context.Context, orderID string) (*model.Order, error)
	Cancel(ctx context.Context, orderID, reason string) (*model.Order, error)
	OpenDispute(ctx context.Context, orderID, reason string) (*model.Order, error)
	ResolveDispute(ctx context.Context, orderID, outcome string) (*model.Order, error)
	Get(ctx context.Context, orderID string) (*model.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]model.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Order, error)
}

// NotificationService provides stored notifications.
type NotificationService interface {
	List(ctx context.Context, userTo string) ([]model.Notification, error)
	MarkAsRead(ctx context.Context, notificationID string) (*model.Notification, error)
}

// NotificationStream hands out live notification subscriptions.
type NotificationStream interface {
	Subscribe(userTo string) (<-chan model.Notification, func())
}

// UsersService provides buyer profiles and seller statistics.
type UsersService interface {
	Seller(ctx context.Context, sellerID string) (*model.Seller, error)
	Buyer(ctx context.Context, buyerID string) (*model.Buyer, error)
}
