package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
)

type sellerRepository struct {
	storage *Storage
}

type buyerRepository struct {
	storage *Storage
}

// starColumns maps a 1..5 rating to its counter column.
var starColumns = [5]string{"one_star", "two_star", "three_star", "four_star", "five_star"}

func (r *sellerRepository) Get(ctx context.Context, sellerID string) (*model.Seller, error) {
	const query = `SELECT seller_id, username, ongoing_jobs, completed_jobs, cancelled_jobs, total_earnings, total_gigs,
                   recent_delivery, ratings_count, rating_sum, one_star, two_star, three_star, four_star, five_star, updated_at
                   FROM sellers WHERE seller_id=$1`
	var s model.Seller
	err := r.storage.pool.QueryRow(ctx, query, sellerID).Scan(&s.ID, &s.Username, &s.OngoingJobs, &s.CompletedJobs,
		&s.CancelledJobs, &s.TotalEarnings, &s.TotalGigs, &s.RecentDelivery, &s.RatingsCount, &s.RatingSum,
		&s.RatingCategories[0], &s.RatingCategories[1], &s.RatingCategories[2], &s.RatingCategories[3],
		&s.RatingCategories[4], &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// SetTotals overwrites the provided counters; replays converge on the same row.
func (r *sellerRepository) SetTotals(ctx context.Context, sellerID string, totals model.SellerTotals) error {
	const query = `INSERT INTO sellers (seller_id, ongoing_jobs, completed_jobs, total_earnings, recent_delivery)
                   VALUES ($1, COALESCE($2, 0), COALESCE($3, 0), COALESCE($4, 0), $5)
                   ON CONFLICT (seller_id) DO UPDATE SET
                       ongoing_jobs = COALESCE($2, sellers.ongoing_jobs),
                       completed_jobs = COALESCE($3, sellers.completed_jobs),
                       total_earnings = COALESCE($4, sellers.total_earnings),
                       recent_delivery = COALESCE($5, sellers.recent_delivery),
                       updated_at = NOW()`
	_, err := r.storage.pool.Exec(ctx, query, sellerID, totals.OngoingJobs, totals.CompletedJobs, totals.TotalEarnings, totals.RecentDelivery)
	return err
}

func (r *sellerRepository) SetGigCount(ctx context.Context, sellerID string, count int) error {
	const query = `INSERT INTO sellers (seller_id, total_gigs) VALUES ($1, $2)
                   ON CONFLICT (seller_id) DO UPDATE SET total_gigs = EXCLUDED.total_gigs, updated_at = NOW()`
	_, err := r.storage.pool.Exec(ctx, query, sellerID, count)
	return err
}

func (r *sellerRepository) ApplyDelta(ctx context.Context, messageKey, sellerID string, delta model.SellerDelta) error {
	const query = `INSERT INTO sellers (seller_id, ongoing_jobs, completed_jobs, cancelled_jobs, total_earnings, recent_delivery)
                   VALUES ($1, GREATEST($2, 0), $3, $4, $5, $6)
                   ON CONFLICT (seller_id) DO UPDATE SET
                       ongoing_jobs = GREATEST(sellers.ongoing_jobs + $2, 0),
                       completed_jobs = sellers.completed_jobs + $3,
                       cancelled_jobs = sellers.cancelled_jobs + $4,
                       total_earnings = sellers.total_earnings + $5,
                       recent_delivery = COALESCE($6, sellers.recent_delivery),
                       updated_at = NOW()`

	return r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		fresh, err := markProcessed(ctx, tx, messageKey)
		if err != nil {
			return err
		}
		if !fresh {
			return domainErrors.ErrAlreadyProcessed
		}
		_, err = tx.Exec(ctx, query, sellerID, delta.OngoingJobs, delta.CompletedJobs, delta.CancelledJobs,
			delta.TotalEarnings, delta.RecentDelivery)
		return err
	})
}

func (r *sellerRepository) ApplyReview(ctx context.Context, messageKey string, review model.Review) error {
	if review.Rating < 1 || review.Rating > len(starColumns) {
		return fmt.Errorf("rating %d out of range: %w", review.Rating, domainErrors.ErrInvalidOrder)
	}
	column := starColumns[review.Rating-1]
	query := fmt.Sprintf(`INSERT INTO sellers (seller_id, ratings_count, rating_sum, %[1]s) VALUES ($1, 1, $2, 1)
                   ON CONFLICT (seller_id) DO UPDATE SET
                       ratings_count = sellers.ratings_count + 1,
                       rating_sum = sellers.rating_sum + $2,
                       %[1]s = sellers.%[1]s + 1,
                       updated_at = NOW()`, column)

	return r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		fresh, err := markProcessed(ctx, tx, messageKey)
		if err != nil {
			return err
		}
		if !fresh {
			return domainErrors.ErrAlreadyProcessed
		}
		_, err = tx.Exec(ctx, query, review.SellerID, review.Rating)
		return err
	})
}

func (r *buyerRepository) Get(ctx context.Context, buyerID string) (*model.Buyer, error) {
	const query = `SELECT buyer_id, username, email, profile_picture, country, purchased_gigs, created_at
                   FROM buyers WHERE buyer_id=$1`
	var b model.Buyer
	err := r.storage.pool.QueryRow(ctx, query, buyerID).Scan(&b.ID, &b.Username, &b.Email, &b.ProfilePicture,
		&b.Country, &b.PurchasedGigs, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *buyerRepository) Upsert(ctx context.Context, buyer model.Buyer) error {
	const query = `INSERT INTO buyers (buyer_id, username, email, profile_picture, country)
                   VALUES ($1, $2, $3, $4, $5)
                   ON CONFLICT (buyer_id) DO UPDATE SET
                       username = EXCLUDED.username,
                       email = EXCLUDED.email,
                       profile_picture = EXCLUDED.profile_picture,
                       country = EXCLUDED.country`
	_, err := r.storage.pool.Exec(ctx, query, buyer.ID, buyer.Username, buyer.Email, buyer.ProfilePicture, buyer.Country)
	return err
}

// AddPurchasedGig is a set-add so redelivered messages leave the list unchanged.
func (r *buyerRepository) AddPurchasedGig(ctx context.Context, buyerID, gigID string) error {
	const query = `INSERT INTO buyers (buyer_id, purchased_gigs) VALUES ($1, ARRAY[$2::text])
                   ON CONFLICT (buyer_id) DO UPDATE SET purchased_gigs =
                       CASE WHEN $2::text = ANY(buyers.purchased_gigs) THEN buyers.purchased_gigs
                            ELSE array_append(buyers.purchased_gigs, $2::text) END`
	_, err := r.storage.pool.Exec(ctx, query, buyerID, gigID)
	return err
}

func (r *buyerRepository) RemovePurchasedGig(ctx context.Context, buyerID, gigID string) error {
	const query = `UPDATE buyers SET purchased_gigs = array_remove(purchased_gigs, $2::text) WHERE buyer_id=$1`
	_, err := r.storage.pool.Exec(ctx, query, buyerID, gigID)
	return err
}
