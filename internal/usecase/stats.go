package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/domain/repository"
	"github.com/polkiloo/jobber/internal/messaging"
)

// UsersService maintains buyer profiles and seller statistics from broker messages.
// Every handler is safe to run again for the same message.
type UsersService struct {
	sellers repository.SellerRepository
	buyers  repository.BuyerRepository
	logger  *slog.Logger
}

// NewUsersService constructs UsersService.
func NewUsersService(sellers repository.SellerRepository, buyers repository.BuyerRepository, logger *slog.Logger) *UsersService {
	return &UsersService{sellers: sellers, buyers: buyers, logger: logger}
}

// HandleOrderEvent derives seller counters and buyer purchases from an order event.
func (s *UsersService) HandleOrderEvent(ctx context.Context, ev model.DomainEvent) error {
	o := ev.Order
	key := ev.IdempotencyKey()

	switch ev.Type {
	case model.EventPaymentConfirmed:
		if err := s.applyDelta(ctx, key, o.SellerID, model.SellerDelta{OngoingJobs: 1}); err != nil {
			return err
		}
		return s.buyers.AddPurchasedGig(ctx, o.BuyerID, o.GigID)
	case model.EventCompleted:
		delivered := ev.OccurredAt
		return s.applyDelta(ctx, key, o.SellerID, model.SellerDelta{
			OngoingJobs:    -1,
			CompletedJobs:  1,
			TotalEarnings:  o.Price,
			RecentDelivery: &delivered,
		})
	case model.EventCancelled:
		if err := s.applyDelta(ctx, cancelKey(o.OrderID), o.SellerID, model.SellerDelta{CancelledJobs: 1}); err != nil {
			return err
		}
		if ev.PreviousStatus == model.OrderStatusInProgress {
			if err := s.applyDelta(ctx, ongoingCancelKey(o.OrderID), o.SellerID, model.SellerDelta{OngoingJobs: -1}); err != nil {
				return err
			}
		}
		return s.buyers.RemovePurchasedGig(ctx, o.BuyerID, o.GigID)
	case model.EventRefunded:
		if err := s.applyDelta(ctx, key, o.SellerID, model.SellerDelta{OngoingJobs: -1}); err != nil {
			return err
		}
		return s.buyers.RemovePurchasedGig(ctx, o.BuyerID, o.GigID)
	default:
		return nil
	}
}

// HandleSeller applies a message from the seller queue.
func (s *UsersService) HandleSeller(ctx context.Context, msg messaging.SellerMessage) error {
	switch m := msg.(type) {
	case messaging.SellerCreateOrder:
		ongoing := m.OngoingJobs
		return s.sellers.SetTotals(ctx, m.SellerID, model.SellerTotals{OngoingJobs: &ongoing})
	case messaging.SellerApproveOrder:
		ongoing, completed, earnings := m.OngoingJobs, m.CompletedJobs, m.TotalEarnings
		return s.sellers.SetTotals(ctx, m.SellerID, model.SellerTotals{
			OngoingJobs:    &ongoing,
			CompletedJobs:  &completed,
			TotalEarnings:  &earnings,
			RecentDelivery: m.RecentDelivery,
		})
	case messaging.SellerGigCount:
		return s.sellers.SetGigCount(ctx, m.SellerID, m.Count)
	case messaging.SellerCancelOrder:
		return s.applyDelta(ctx, cancelKey(m.OrderID), m.SellerID, model.SellerDelta{CancelledJobs: 1})
	default:
		return fmt.Errorf("seller message %T: %w", msg, domainErrors.ErrUnknownMessageType)
	}
}

// HandleBuyer applies a message from the buyer queue.
func (s *UsersService) HandleBuyer(ctx context.Context, msg messaging.BuyerMessage) error {
	switch m := msg.(type) {
	case messaging.BuyerAuth:
		return s.buyers.Upsert(ctx, m.Buyer)
	case messaging.BuyerPurchasedGig:
		return s.buyers.AddPurchasedGig(ctx, m.BuyerID, m.GigID)
	case messaging.BuyerCancelledGig:
		return s.buyers.RemovePurchasedGig(ctx, m.BuyerID, m.GigID)
	default:
		return fmt.Errorf("buyer message %T: %w", msg, domainErrors.ErrUnknownMessageType)
	}
}

// HandleReview adds a review rating to the seller once per review id.
func (s *UsersService) HandleReview(ctx context.Context, review model.Review) error {
	err := s.sellers.ApplyReview(ctx, "review:"+review.ID, review)
	if errors.Is(err, domainErrors.ErrAlreadyProcessed) {
		s.logger.Debug("review already applied", slog.String("review_id", review.ID))
		return nil
	}
	return err
}

// Seller returns seller statistics.
func (s *UsersService) Seller(ctx context.Context, sellerID string) (*model.Seller, error) {
	return s.sellers.Get(ctx, sellerID)
}

// Buyer returns a buyer profile.
func (s *UsersService) Buyer(ctx context.Context, buyerID string) (*model.Buyer, error) {
	return s.buyers.Get(ctx, buyerID)
}

func (s *UsersService) applyDelta(ctx context.Context, key, sellerID string, delta model.SellerDelta) error {
	err := s.sellers.ApplyDelta(ctx, key, sellerID, delta)
	if errors.Is(err, domainErrors.ErrAlreadyProcessed) {
		s.logger.Debug("seller update already applied", slog.String("key", key))
		return nil
	}
	return err
}

// cancelKey is shared by cancellation events and cancel-order messages so an
// order is counted as cancelled once whichever arrives first.
func cancelKey(orderID string) string {
	return "seller-cancel:" + orderID
}

// ongoingCancelKey guards the ongoing jobs decrement, which only the
// cancellation event carries.
func ongoingCancelKey(orderID string) string {
	return "seller-ongoing-cancel:" + orderID
}
