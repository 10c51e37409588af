package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmockv3 "github.com/pashagolub/pgxmock/v3"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
)

var orderColumnNames = []string{
	"order_id", "buyer", "seller", "gig_id", "gig_title", "gig_description", "price", "payment_type", "status",
	"delivered", "approved", "cancelled", "events", "approved_at", "offer", "delivered_work", "crypto_payment",
	"payment_ref", "orphaned", "version", "created_at", "updated_at",
}

func sampleCryptoOrder() model.Order {
	return model.Order{
		ID:          "order-1",
		Buyer:       model.Party{ID: "buyer-1", Username: "bob", Email: "bob@example.com"},
		Seller:      model.Party{ID: "seller-1", Username: "sam", Email: "sam@example.com"},
		GigID:       "gig-1",
		GigTitle:    "Logo design",
		Price:       100,
		PaymentType: model.PaymentTypeCrypto,
		Status:      model.OrderStatusPendingCryptoPayment,
		CryptoPayment: &model.CryptoPayment{
			TokenAddress:  "0xToken",
			TokenSymbol:   "USDC",
			BuyerWallet:   "0xB",
			SellerWallet:  "0xS",
			ChainID:       137,
			EscrowOrderID: "crypto_1",
			EscrowStatus:  model.EscrowStatusCreated,
		},
		DeliveredWork: []model.DeliveredWork{{FileName: "logo.png", FileSize: 42}},
	}
}

func orderRowValues(t *testing.T, o model.Order, version int64, at time.Time) []any {
	t.Helper()
	docs, err := encodeOrder(o)
	if err != nil {
		t.Fatalf("encode order: %v", err)
	}
	var crypto any
	if docs.crypto != nil {
		crypto = docs.crypto
	}
	return []any{
		o.ID, docs.buyer, docs.seller, o.GigID, o.GigTitle, o.GigDescription, o.Price, o.PaymentType, o.Status,
		o.Delivered, o.Approved, o.Cancelled, docs.events, nil, docs.offer, docs.work, crypto,
		o.PaymentRef, o.Orphaned, version, at, at,
	}
}

func TestOrderRepositoryCreate(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	now := time.Now()
	order := sampleCryptoOrder()

	mock.ExpectQuery("INSERT INTO orders").WillReturnRows(
		pgxmockv3.NewRows([]string{"version", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	created, err := repo.Create(context.Background(), order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Version != 1 || !created.CreatedAt.Equal(now) || created.EscrowOrderID() != "crypto_1" {
		t.Fatalf("unexpected order: %+v", created)
	}

	mock.ExpectQuery("INSERT INTO orders").WillReturnError(&pgconn.PgError{Code: "23505"})
	if _, err := repo.Create(context.Background(), order); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	mock.ExpectQuery("INSERT INTO orders").WillReturnError(errors.New("insert"))
	if _, err := repo.Create(context.Background(), order); err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestOrderRepositoryGetByID(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	now := time.Now()
	order := sampleCryptoOrder()

	mock.ExpectQuery("SELECT .* FROM orders WHERE order_id=").WithArgs("order-1").WillReturnRows(
		pgxmockv3.NewRows(orderColumnNames).AddRow(orderRowValues(t, order, 3, now)...))
	got, err := repo.GetByID(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != 3 || got.Buyer.Username != "bob" || got.CryptoPayment == nil || got.CryptoPayment.ChainID != 137 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(got.DeliveredWork) != 1 || got.DeliveredWork[0].FileSize != 42 {
		t.Fatalf("unexpected delivered work: %+v", got.DeliveredWork)
	}

	standard := order
	standard.PaymentType = model.PaymentTypeStandard
	standard.Status = model.OrderStatusPendingPayment
	standard.CryptoPayment = nil
	mock.ExpectQuery("SELECT .* FROM orders WHERE order_id=").WithArgs("order-2").WillReturnRows(
		pgxmockv3.NewRows(orderColumnNames).AddRow(orderRowValues(t, standard, 1, now)...))
	got, err = repo.GetByID(context.Background(), "order-2")
	if err != nil || got.CryptoPayment != nil {
		t.Fatalf("expected standard order without crypto payment, got %+v err=%v", got, err)
	}

	mock.ExpectQuery("SELECT .* FROM orders WHERE order_id=").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestOrderRepositoryUpdate(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	now := time.Now()
	order := sampleCryptoOrder()
	order.Status = model.OrderStatusInProgress

	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnRows(
		pgxmockv3.NewRows([]string{"version", "updated_at"}).AddRow(int64(2), now))
	updated, err := repo.Update(context.Background(), order, 1)
	if err != nil || updated.Version != 2 || updated.Status != model.OrderStatusInProgress {
		t.Fatalf("unexpected update result: %+v err=%v", updated, err)
	}

	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("order-1").WillReturnRows(pgxmockv3.NewRows([]string{"exists"}).AddRow(true))
	if _, err := repo.Update(context.Background(), order, 1); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict on stale version, got %v", err)
	}

	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").WithArgs("order-1").WillReturnRows(pgxmockv3.NewRows([]string{"exists"}).AddRow(false))
	if _, err := repo.Update(context.Background(), order, 1); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnError(errors.New("update"))
	if _, err := repo.Update(context.Background(), order, 1); err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestOrderRepositoryDeleteAndOrphan(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	mock.ExpectExec("DELETE FROM orders").WithArgs("order-1").WillReturnResult(pgxmockv3.NewResult("DELETE", 1))
	if err := repo.Delete(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec("DELETE FROM orders").WithArgs("order-1").WillReturnResult(pgxmockv3.NewResult("DELETE", 0))
	if err := repo.Delete(context.Background(), "order-1"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	mock.ExpectExec("UPDATE orders SET orphaned=TRUE").WithArgs("order-1").WillReturnResult(pgxmockv3.NewResult("UPDATE", 1))
	if err := repo.MarkOrphaned(context.Background(), "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectExec("UPDATE orders SET orphaned=TRUE").WithArgs("order-2").WillReturnError(errors.New("boom"))
	if err := repo.MarkOrphaned(context.Background(), "order-2"); err == nil {
		t.Fatal("expected error")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestOrderRepositoryLists(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	now := time.Now()
	order := sampleCryptoOrder()

	mock.ExpectQuery("FROM orders WHERE buyer_id=").WithArgs("buyer-1").WillReturnRows(
		pgxmockv3.NewRows(orderColumnNames).AddRow(orderRowValues(t, order, 1, now)...))
	orders, err := repo.ListByBuyer(context.Background(), "buyer-1")
	if err != nil || len(orders) != 1 {
		t.Fatalf("unexpected buyer orders: %v err=%v", orders, err)
	}

	mock.ExpectQuery("FROM orders WHERE seller_id=").WithArgs("seller-1").WillReturnError(errors.New("query"))
	if _, err := repo.ListBySeller(context.Background(), "seller-1"); err == nil {
		t.Fatal("expected error")
	}

	olderThan := now.Add(-10 * time.Minute)
	mock.ExpectQuery("WHERE payment_type='crypto'").
		WithArgs([]string{"pending_crypto_payment", "in_progress"}, olderThan, 25).
		WillReturnRows(pgxmockv3.NewRows(orderColumnNames).AddRow(orderRowValues(t, order, 1, now)...))
	stale, err := repo.ListStale(context.Background(),
		[]model.OrderStatus{model.OrderStatusPendingCryptoPayment, model.OrderStatusInProgress}, olderThan, 25)
	if err != nil || len(stale) != 1 || stale[0].ID != "order-1" {
		t.Fatalf("unexpected stale orders: %v err=%v", stale, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestOrderRepositoryListRowsError(t *testing.T) {
	storage := &Storage{pool: &rowsErrorPool{rows: &errorRows{err: errors.New("rows err")}}}
	repo := &orderRepository{storage: storage}
	if _, err := repo.ListByBuyer(context.Background(), "buyer-1"); err == nil {
		t.Fatal("expected rows error")
	}
}

func TestOrderRepositoryWritesOutboxInTransaction(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	now := time.Now()
	order := sampleCryptoOrder()
	msg, err := model.NewOutboxMessage("msg-1", order.ID, "jobber-order-events", "", map[string]string{"type": "order.created"}, now)
	if err != nil {
		t.Fatalf("outbox message: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO orders").WillReturnRows(
		pgxmockv3.NewRows([]string{"version", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	mock.ExpectExec("INSERT INTO order_outbox").
		WithArgs("msg-1", "order-1", "jobber-order-events", "", pgxmockv3.AnyArg(), msg.CreatedAt).
		WillReturnResult(pgxmockv3.NewResult("INSERT", 1))
	mock.ExpectCommit()
	if _, err := repo.Create(context.Background(), order, msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnRows(
		pgxmockv3.NewRows([]string{"version", "updated_at"}).AddRow(int64(2), now))
	mock.ExpectExec("INSERT INTO order_outbox").WillReturnResult(pgxmockv3.NewResult("INSERT", 1))
	mock.ExpectCommit()
	updated, err := repo.Update(context.Background(), order, 1, msg)
	if err != nil || updated.Version != 2 {
		t.Fatalf("unexpected update result: %+v err=%v", updated, err)
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnRows(
		pgxmockv3.NewRows([]string{"version", "updated_at"}).AddRow(int64(3), now))
	mock.ExpectExec("INSERT INTO order_outbox").WillReturnError(errors.New("outbox"))
	mock.ExpectRollback()
	if _, err := repo.Update(context.Background(), order, 2, msg); err == nil {
		t.Fatal("expected outbox failure to fail the update")
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE orders SET buyer").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT EXISTS").WithArgs("order-1").WillReturnRows(pgxmockv3.NewRows([]string{"exists"}).AddRow(true))
	if _, err := repo.Update(context.Background(), order, 1, msg); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}

func TestOrderRepositoryPendingOutbox(t *testing.T) {
	storage, mock := newMockStorage(t)
	defer mock.Close()
	repo := &orderRepository{storage: storage}

	now := time.Now()
	olderThan := now.Add(-time.Second)
	mock.ExpectQuery("FROM order_outbox").WithArgs(olderThan, 10).WillReturnRows(
		pgxmockv3.NewRows([]string{"id", "order_id", "exchange", "routing_key", "payload", "created_at"}).
			AddRow("msg-1", "order-1", "jobber-order-events", "", []byte(`{"type":"order.created"}`), now))
	pending, err := repo.PendingOutbox(context.Background(), olderThan, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("unexpected pending messages: %+v err=%v", pending, err)
	}
	if pending[0].OrderID != "order-1" || string(pending[0].Payload) != `{"type":"order.created"}` {
		t.Fatalf("unexpected message %+v", pending[0])
	}

	mock.ExpectQuery("FROM order_outbox").WillReturnError(errors.New("query"))
	if _, err := repo.PendingOutbox(context.Background(), olderThan, 10); err == nil {
		t.Fatal("expected error")
	}

	mock.ExpectExec("UPDATE order_outbox SET published_at").WithArgs("msg-1").WillReturnResult(pgxmockv3.NewResult("UPDATE", 1))
	if err := repo.MarkPublished(context.Background(), "msg-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mock.ExpectExec("UPDATE order_outbox SET published_at").WithArgs("msg-1").WillReturnResult(pgxmockv3.NewResult("UPDATE", 0))
	if err := repo.MarkPublished(context.Background(), "msg-1"); !errors.Is(err, domainErrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations not met: %v", err)
	}
}
