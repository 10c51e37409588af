package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
)

type orderRepository struct {
	storage *Storage
}

const orderColumns = `order_id, buyer, seller, gig_id, gig_title, gig_description, price, payment_type, status,
        delivered, approved, cancelled, events, approved_at, offer, delivered_work, crypto_payment,
        payment_ref, orphaned, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// orderDocuments holds the JSONB encoded parts of an order.
type orderDocuments struct {
	buyer, seller, events, offer, work, crypto []byte
}

func encodeOrder(o model.Order) (orderDocuments, error) {
	var (
		docs orderDocuments
		err  error
	)
	if docs.buyer, err = json.Marshal(o.Buyer); err != nil {
		return docs, fmt.Errorf("encode buyer: %w", err)
	}
	if docs.seller, err = json.Marshal(o.Seller); err != nil {
		return docs, fmt.Errorf("encode seller: %w", err)
	}
	if docs.events, err = json.Marshal(o.Events); err != nil {
		return docs, fmt.Errorf("encode events: %w", err)
	}
	if docs.offer, err = json.Marshal(o.Offer); err != nil {
		return docs, fmt.Errorf("encode offer: %w", err)
	}
	work := o.DeliveredWork
	if work == nil {
		work = []model.DeliveredWork{}
	}
	if docs.work, err = json.Marshal(work); err != nil {
		return docs, fmt.Errorf("encode delivered work: %w", err)
	}
	if o.CryptoPayment != nil {
		if docs.crypto, err = json.Marshal(o.CryptoPayment); err != nil {
			return docs, fmt.Errorf("encode crypto payment: %w", err)
		}
	}
	return docs, nil
}

func scanOrder(row rowScanner) (model.Order, error) {
	var (
		o    model.Order
		docs orderDocuments
	)
	err := row.Scan(&o.ID, &docs.buyer, &docs.seller, &o.GigID, &o.GigTitle, &o.GigDescription, &o.Price,
		&o.PaymentType, &o.Status, &o.Delivered, &o.Approved, &o.Cancelled, &docs.events, &o.ApprovedAt,
		&docs.offer, &docs.work, &docs.crypto, &o.PaymentRef, &o.Orphaned, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal(docs.buyer, &o.Buyer); err != nil {
		return o, fmt.Errorf("decode buyer: %w", err)
	}
	if err := json.Unmarshal(docs.seller, &o.Seller); err != nil {
		return o, fmt.Errorf("decode seller: %w", err)
	}
	if len(docs.events) > 0 {
		if err := json.Unmarshal(docs.events, &o.Events); err != nil {
			return o, fmt.Errorf("decode events: %w", err)
		}
	}
	if len(docs.offer) > 0 {
		if err := json.Unmarshal(docs.offer, &o.Offer); err != nil {
			return o, fmt.Errorf("decode offer: %w", err)
		}
	}
	if len(docs.work) > 0 {
		if err := json.Unmarshal(docs.work, &o.DeliveredWork); err != nil {
			return o, fmt.Errorf("decode delivered work: %w", err)
		}
	}
	if len(docs.crypto) > 0 {
		var cp model.CryptoPayment
		if err := json.Unmarshal(docs.crypto, &cp); err != nil {
			return o, fmt.Errorf("decode crypto payment: %w", err)
		}
		o.CryptoPayment = &cp
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// queryExecer is satisfied by both the pool and a transaction.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *orderRepository) Create(ctx context.Context, order model.Order, outbox ...model.OutboxMessage) (*model.Order, error) {
	if len(outbox) == 0 {
		return insertOrder(ctx, r.storage.pool, order)
	}

	var created *model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		if created, err = insertOrder(ctx, tx, order); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, outbox)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertOrder(ctx context.Context, q queryExecer, order model.Order) (*model.Order, error) {
	const query = `INSERT INTO orders (order_id, buyer_id, seller_id, buyer, seller, gig_id, gig_title, gig_description,
                   price, payment_type, status, delivered, approved, cancelled, events, approved_at, offer,
                   delivered_work, crypto_payment, payment_ref, orphaned, version)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, 1)
                   RETURNING version, created_at, updated_at`

	docs, err := encodeOrder(order)
	if err != nil {
		return nil, err
	}

	created := order.Clone()
	err = q.QueryRow(ctx, query,
		order.ID, order.Buyer.ID, order.Seller.ID, docs.buyer, docs.seller, order.GigID, order.GigTitle, order.GigDescription,
		order.Price, string(order.PaymentType), string(order.Status), order.Delivered, order.Approved, order.Cancelled,
		docs.events, order.ApprovedAt, docs.offer, docs.work, docs.crypto, order.PaymentRef, order.Orphaned,
	).Scan(&created.Version, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("order %s: %w", order.ID, domainErrors.ErrConflict)
		}
		return nil, err
	}
	return &created, nil
}

func insertOutbox(ctx context.Context, q queryExecer, outbox []model.OutboxMessage) error {
	const query = `INSERT INTO order_outbox (id, order_id, exchange, routing_key, payload, created_at)
                   VALUES ($1, $2, $3, $4, $5, $6)
                   ON CONFLICT (id) DO NOTHING`

	for _, m := range outbox {
		if _, err := q.Exec(ctx, query, m.ID, m.OrderID, m.Exchange, m.RoutingKey, []byte(m.Payload), m.CreatedAt); err != nil {
			return fmt.Errorf("store outbox message %s: %w", m.ID, err)
		}
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id=$1`
	o, err := scanOrder(r.storage.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Update(ctx context.Context, order model.Order, expectedVersion int64, outbox ...model.OutboxMessage) (*model.Order, error) {
	var (
		updated *model.Order
		err     error
	)
	if len(outbox) == 0 {
		updated, err = updateOrder(ctx, r.storage.pool, order, expectedVersion)
	} else {
		err = r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
			var err error
			if updated, err = updateOrder(ctx, tx, order, expectedVersion); err != nil {
				return err
			}
			return insertOutbox(ctx, tx, outbox)
		})
	}
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var exists bool
	if err := r.storage.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE order_id=$1)`, order.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domainErrors.ErrNotFound
	}
	return nil, fmt.Errorf("order %s changed concurrently: %w", order.ID, domainErrors.ErrConflict)
}

func updateOrder(ctx context.Context, q queryExecer, order model.Order, expectedVersion int64) (*model.Order, error) {
	const query = `UPDATE orders SET buyer=$2, seller=$3, gig_title=$4, gig_description=$5, price=$6, status=$7,
                   delivered=$8, approved=$9, cancelled=$10, events=$11, approved_at=$12, offer=$13,
                   delivered_work=$14, crypto_payment=$15, payment_ref=$16, orphaned=$17,
                   version = version + 1, updated_at = NOW()
                   WHERE order_id=$1 AND version=$18
                   RETURNING version, updated_at`

	docs, err := encodeOrder(order)
	if err != nil {
		return nil, err
	}

	updated := order.Clone()
	err = q.QueryRow(ctx, query,
		order.ID, docs.buyer, docs.seller, order.GigTitle, order.GigDescription, order.Price, string(order.Status),
		order.Delivered, order.Approved, order.Cancelled, docs.events, order.ApprovedAt, docs.offer,
		docs.work, docs.crypto, order.PaymentRef, order.Orphaned, expectedVersion,
	).Scan(&updated.Version, &updated.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *orderRepository) Delete(ctx context.Context, orderID string) error {
	tag, err := r.storage.pool.Exec(ctx, `DELETE FROM orders WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *orderRepository) MarkOrphaned(ctx context.Context, orderID string) error {
	tag, err := r.storage.pool.Exec(ctx, `UPDATE orders SET orphaned=TRUE, version = version + 1, updated_at=NOW() WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id=$1 AND NOT orphaned ORDER BY created_at DESC`
	rows, err := r.storage.pool.Query(ctx, query, buyerID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) ListBySeller(ctx context.Context, sellerID string) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE seller_id=$1 AND NOT orphaned ORDER BY created_at DESC`
	rows, err := r.storage.pool.Query(ctx, query, sellerID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) ListStale(ctx context.Context, statuses []model.OrderStatus, olderThan time.Time, limit int) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
                   WHERE payment_type='crypto' AND NOT orphaned AND status = ANY($1) AND updated_at < $2
                   ORDER BY updated_at
                   LIMIT $3`

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := r.storage.pool.Query(ctx, query, names, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) PendingOutbox(ctx context.Context, olderThan time.Time, limit int) ([]model.OutboxMessage, error) {
	const query = `SELECT id, order_id, exchange, routing_key, payload, created_at FROM order_outbox
                   WHERE published_at IS NULL AND created_at < $1
                   ORDER BY created_at, id
                   LIMIT $2`

	rows, err := r.storage.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.OutboxMessage
	for rows.Next() {
		var (
			m       model.OutboxMessage
			payload []byte
		)
		if err := rows.Scan(&m.ID, &m.OrderID, &m.Exchange, &m.RoutingKey, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = payload
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *orderRepository) MarkPublished(ctx context.Context, messageID string) error {
	tag, err := r.storage.pool.Exec(ctx, `UPDATE order_outbox SET published_at=NOW() WHERE id=$1 AND published_at IS NULL`, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}
