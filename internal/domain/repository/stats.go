package repository

import (
	"context"

	"github.com/polkiloo/jobber/internal/domain/model"
)

// SellerRepository applies idempotent counter updates to sellers.
type SellerRepository interface {
	Get(ctx context.Context, sellerID string) (*model.Seller, error)
	SetTotals(ctx context.Context, sellerID string, totals model.SellerTotals) error
	SetGigCount(ctx context.Context, sellerID string, count int) error
	// ApplyDelta applies a relative change once per messageKey. A replay returns ErrAlreadyProcessed.
	ApplyDelta(ctx context.Context, messageKey, sellerID string, delta model.SellerDelta) error
	// ApplyReview adds a rating once per messageKey.
	ApplyReview(ctx context.Context, messageKey string, review model.Review) error
}

// BuyerRepository maintains buyer profiles.
type BuyerRepository interface {
	Get(ctx context.Context, buyerID string) (*model.Buyer, error)
	Upsert(ctx context.Context, buyer model.Buyer) error
	AddPurchasedGig(ctx context.Context, buyerID, gigID string) error
	RemovePurchasedGig(ctx context.Context, buyerID, gigID string) error
}
