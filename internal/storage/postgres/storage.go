package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polkiloo/jobber/internal/domain/repository"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var newPgxPool = func(ctx context.Context, cfg *pgxpool.Config) (pgxPool, error) {
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Storage acts as repository facade backed by PostgreSQL.
type Storage struct {
	pool   pgxPool
	logger *slog.Logger
}

// New creates storage with schema initialization.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pool, err := newPgxPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	storage := &Storage{pool: pool, logger: logger}
	if err := storage.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Orders returns the order store.
func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

// Notifications returns the notification store.
func (s *Storage) Notifications() repository.NotificationRepository {
	return &notificationRepository{storage: s}
}

// Sellers returns the seller statistics store.
func (s *Storage) Sellers() repository.SellerRepository {
	return &sellerRepository{storage: s}
}

// Buyers returns the buyer profile store.
func (s *Storage) Buyers() repository.BuyerRepository {
	return &buyerRepository{storage: s}
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS orders (
            order_id TEXT PRIMARY KEY,
            buyer_id TEXT NOT NULL,
            seller_id TEXT NOT NULL,
            buyer JSONB NOT NULL,
            seller JSONB NOT NULL,
            gig_id TEXT NOT NULL,
            gig_title TEXT NOT NULL DEFAULT '',
            gig_description TEXT NOT NULL DEFAULT '',
            price DOUBLE PRECISION NOT NULL,
            payment_type TEXT NOT NULL,
            status TEXT NOT NULL,
            delivered BOOLEAN NOT NULL DEFAULT FALSE,
            approved BOOLEAN NOT NULL DEFAULT FALSE,
            cancelled BOOLEAN NOT NULL DEFAULT FALSE,
            events JSONB NOT NULL DEFAULT '{}',
            approved_at TIMESTAMPTZ,
            offer JSONB NOT NULL DEFAULT '{}',
            delivered_work JSONB NOT NULL DEFAULT '[]',
            crypto_payment JSONB,
            payment_ref TEXT NOT NULL DEFAULT '',
            orphaned BOOLEAN NOT NULL DEFAULT FALSE,
            version BIGINT NOT NULL DEFAULT 1,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS order_outbox (
            id TEXT PRIMARY KEY,
            order_id TEXT NOT NULL,
            exchange TEXT NOT NULL,
            routing_key TEXT NOT NULL DEFAULT '',
            payload JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            published_at TIMESTAMPTZ
        )`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id TEXT PRIMARY KEY,
            user_to TEXT NOT NULL,
            sender_username TEXT NOT NULL DEFAULT '',
            sender_picture TEXT NOT NULL DEFAULT '',
            receiver_username TEXT NOT NULL DEFAULT '',
            receiver_picture TEXT NOT NULL DEFAULT '',
            message TEXT NOT NULL,
            order_id TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS sellers (
            seller_id TEXT PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            ongoing_jobs INTEGER NOT NULL DEFAULT 0,
            completed_jobs INTEGER NOT NULL DEFAULT 0,
            cancelled_jobs INTEGER NOT NULL DEFAULT 0,
            total_earnings DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_gigs INTEGER NOT NULL DEFAULT 0,
            recent_delivery TIMESTAMPTZ,
            ratings_count INTEGER NOT NULL DEFAULT 0,
            rating_sum INTEGER NOT NULL DEFAULT 0,
            one_star INTEGER NOT NULL DEFAULT 0,
            two_star INTEGER NOT NULL DEFAULT 0,
            three_star INTEGER NOT NULL DEFAULT 0,
            four_star INTEGER NOT NULL DEFAULT 0,
            five_star INTEGER NOT NULL DEFAULT 0,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS buyers (
            buyer_id TEXT PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            profile_picture TEXT NOT NULL DEFAULT '',
            country TEXT NOT NULL DEFAULT '',
            purchased_gigs TEXT[] NOT NULL DEFAULT '{}',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS processed_messages (
            message_key TEXT PRIMARY KEY,
            processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_stale ON orders(status, updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_order_outbox_pending ON order_outbox(created_at) WHERE published_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_to, created_at DESC)`,
}

func (s *Storage) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(tx)
	return err
}

// markProcessed records messageKey in the ledger and reports whether it was new.
func markProcessed(ctx context.Context, tx pgx.Tx, messageKey string) (bool, error) {
	tag, err := tx.Exec(ctx, `INSERT INTO processed_messages (message_key) VALUES ($1) ON CONFLICT (message_key) DO NOTHING`, messageKey)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
