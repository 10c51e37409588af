package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/polkiloo/jobber/internal/adapter/escrow"
	"github.com/polkiloo/jobber/internal/adapter/lock"
	"github.com/polkiloo/jobber/internal/broker"
	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/messaging"
	"github.com/polkiloo/jobber/internal/metrics"
	testhelpers "github.com/polkiloo/jobber/internal/test"
)

type orchestratorFixture struct {
	uc        *OrderOrchestrator
	orders    *testhelpers.OrderRepositoryStub
	gateway   *testhelpers.EscrowStub
	publisher *testhelpers.PublisherStub
	metrics   *metrics.Metrics
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newOrchestratorFixture() *orchestratorFixture {
	f := &orchestratorFixture{
		orders:    testhelpers.NewOrderRepositoryStub(),
		gateway:   testhelpers.NewEscrowStub(),
		publisher: &testhelpers.PublisherStub{},
		metrics:   metrics.New(),
	}
	f.uc = NewOrderOrchestrator(f.orders, f.gateway, f.publisher, lock.NewLocalLocker(), f.metrics, discardLogger())
	f.uc.compensateInterval = time.Millisecond
	return f
}

func cryptoInput(id string) model.Order {
	return model.Order{
		ID:          id,
		Buyer:       model.Party{ID: "buyer-1", Username: "bob", Email: "bob@example.com"},
		Seller:      model.Party{ID: "seller-1", Username: "sam", Email: "sam@example.com"},
		GigID:       "gig-1",
		GigTitle:    "Logo design",
		Price:       100,
		PaymentType: model.PaymentTypeCrypto,
		CryptoPayment: &model.CryptoPayment{
			BuyerWallet:  "0xB0b",
			SellerWallet: "0x5a11",
			TokenAddress: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
			TokenSymbol:  "USDC",
			ChainID:      137,
		},
	}
}

func (f *orchestratorFixture) paidOrder(t *testing.T, id string) *model.Order {
	t.Helper()
	if _, err := f.uc.Create(context.Background(), cryptoInput(id)); err != nil {
		t.Fatalf("create: %v", err)
	}
	order, err := f.uc.ConfirmPayment(context.Background(), id, "0xabc", 123)
	if err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return order
}

func eventTypes(events []model.DomainEvent) []model.EventType {
	types := make([]model.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestCreateCryptoOrderAttachesEscrowOrder(t *testing.T) {
	f := newOrchestratorFixture()

	order, err := f.uc.Create(context.Background(), cryptoInput("order-a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != model.OrderStatusPendingCryptoPayment {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if order.EscrowOrderID() != "escrow-1" {
		t.Fatalf("expected escrow id from gateway, got %q", order.EscrowOrderID())
	}
	if f.gateway.Status("escrow-1") != model.EscrowStatusCreated {
		t.Fatalf("unexpected escrow status %s", f.gateway.Status("escrow-1"))
	}
	if order.CryptoPayment.EscrowStatus != model.EscrowStatusCreated {
		t.Fatalf("escrow status not mirrored: %s", order.CryptoPayment.EscrowStatus)
	}
	if f.gateway.Calls[0].Argument != "100.00" {
		t.Fatalf("unexpected amount sent to gateway: %s", f.gateway.Calls[0].Argument)
	}

	stored, ok := f.orders.Stored("order-a")
	if !ok || stored.EscrowOrderID() != "escrow-1" {
		t.Fatalf("escrow id not persisted: %+v", stored)
	}

	events := f.publisher.Events()
	if len(events) != 1 || events[0].Type != model.EventOrderCreated || events[0].PreviousStatus != "" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if f.publisher.Items[0].Exchange != broker.OrderEventsExchange {
		t.Fatalf("unexpected exchange %s", f.publisher.Items[0].Exchange)
	}
}

func TestCreateStandardOrderSkipsGateway(t *testing.T) {
	f := newOrchestratorFixture()
	input := cryptoInput("")
	input.PaymentType = model.PaymentTypeStandard
	input.CryptoPayment = nil

	order, err := f.uc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID == "" {
		t.Fatal("expected generated order id")
	}
	if order.Status != model.OrderStatusPendingPayment {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if len(f.gateway.Calls) != 0 {
		t.Fatalf("gateway must not be called for standard orders: %+v", f.gateway.Calls)
	}
}

func TestCreateRejectsInvalidOrderBeforeWriting(t *testing.T) {
	f := newOrchestratorFixture()
	f.orders.CreateFn = func(context.Context, model.Order) (*model.Order, error) {
		t.Fatal("create should not be called for invalid order")
		return nil, nil
	}
	input := cryptoInput("order-x")
	input.CryptoPayment.BuyerWallet = ""

	if _, err := f.uc.Create(context.Background(), input); !errors.Is(err, domainErrors.ErrInvalidOrder) {
		t.Fatalf("expected invalid order error, got %v", err)
	}
	if len(f.gateway.Calls) != 0 {
		t.Fatal("gateway must not be called for invalid order")
	}
}

func TestCreateCompensatesWhenGatewayTimesOut(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.CreateFn = func(context.Context, escrow.CreateRequest) (*escrow.Order, error) {
		return nil, domainErrors.ErrGatewayTimeout
	}

	order, err := f.uc.Create(context.Background(), cryptoInput("order-d"))
	if !errors.Is(err, domainErrors.ErrGatewayTimeout) {
		t.Fatalf("expected gateway timeout, got %v", err)
	}
	if order != nil {
		t.Fatalf("expected no order, got %+v", order)
	}
	if _, ok := f.orders.Stored("order-d"); ok {
		t.Fatal("order must be removed by compensation")
	}
	if len(f.publisher.Items) != 0 {
		t.Fatalf("no event expected for a failed creation: %+v", f.publisher.Items)
	}
	if got := testutil.ToFloat64(f.metrics.Compensations.WithLabelValues("deleted")); got != 1 {
		t.Fatalf("expected one compensation, got %v", got)
	}
}

func TestCreateCompensatesWhenGatewayRejects(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.CreateFn = func(context.Context, escrow.CreateRequest) (*escrow.Order, error) {
		return nil, domainErrors.ErrGateway
	}

	if _, err := f.uc.Create(context.Background(), cryptoInput("order-r")); !errors.Is(err, domainErrors.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if _, ok := f.orders.Stored("order-r"); ok {
		t.Fatal("order must be removed by compensation")
	}
}

func TestCreateFlagsOrphanWhenCompensationFails(t *testing.T) {
	f := newOrchestratorFixture()
	f.gateway.CreateFn = func(context.Context, escrow.CreateRequest) (*escrow.Order, error) {
		return nil, domainErrors.ErrGateway
	}
	f.orders.DeleteFn = func(context.Context, string) error {
		return errors.New("database unavailable")
	}

	if _, err := f.uc.Create(context.Background(), cryptoInput("order-o")); !errors.Is(err, domainErrors.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}

	stored, ok := f.orders.Stored("order-o")
	if !ok || !stored.Orphaned {
		t.Fatalf("expected order to be flagged orphaned: %+v", stored)
	}
	if stored.EscrowOrderID() != "" {
		t.Fatalf("orphan must not reference an escrow order: %q", stored.EscrowOrderID())
	}
	if f.orders.DeleteCalls != int(f.uc.compensateRetries)+1 {
		t.Fatalf("expected %d delete attempts, got %d", f.uc.compensateRetries+1, f.orders.DeleteCalls)
	}
	if got := testutil.ToFloat64(f.metrics.OrphanedOrders); got != 1 {
		t.Fatalf("expected orphaned counter 1, got %v", got)
	}
}

func TestCreateCancelsEscrowWhenAttachFails(t *testing.T) {
	f := newOrchestratorFixture()
	f.orders.UpdateFn = func(context.Context, model.Order, int64) (*model.Order, error) {
		return nil, errors.New("database unavailable")
	}

	if _, err := f.uc.Create(context.Background(), cryptoInput("order-f")); err == nil {
		t.Fatal("expected attach error")
	}
	if f.gateway.Status("escrow-1") != model.EscrowStatusCancelled {
		t.Fatalf("expected abandoned escrow to be cancelled, got %s", f.gateway.Status("escrow-1"))
	}
	if _, ok := f.orders.Stored("order-f"); ok {
		t.Fatal("order must be removed by compensation")
	}
}

func TestConfirmPaymentMovesOrderInProgress(t *testing.T) {
	f := newOrchestratorFixture()
	order := f.paidOrder(t, "order-b")

	if order.Status != model.OrderStatusInProgress {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if order.Events.PlaceOrder == nil {
		t.Fatal("expected placeOrder timestamp")
	}
	if order.CryptoPayment.TransactionHash != "0xabc" || order.CryptoPayment.BlockNumber != 123 {
		t.Fatalf("payment proof not stored: %+v", order.CryptoPayment)
	}
	if order.CryptoPayment.EscrowStatus != model.EscrowStatusPaid || f.gateway.Status("escrow-1") != model.EscrowStatusPaid {
		t.Fatalf("escrow status not paid: local=%s remote=%s", order.CryptoPayment.EscrowStatus, f.gateway.Status("escrow-1"))
	}

	events := f.publisher.Events()
	last := events[len(events)-1]
	if last.Type != model.EventPaymentConfirmed || last.PreviousStatus != model.OrderStatusPendingCryptoPayment {
		t.Fatalf("unexpected event %+v", last)
	}

	jobs := f.publisher.EmailJobs()
	if len(jobs) != 1 || jobs[0].Template != messaging.TemplateOrderPlaced || jobs[0].ReceiverEmail != "sam@example.com" {
		t.Fatalf("unexpected email jobs %+v", jobs)
	}
}

func TestConfirmPaymentRequiresTransactionHash(t *testing.T) {
	f := newOrchestratorFixture()
	if _, err := f.uc.ConfirmPayment(context.Background(), "order-1", " ", 1); !errors.Is(err, domainErrors.ErrInvalidOrder) {
		t.Fatalf("expected invalid order error, got %v", err)
	}
}

func TestTransitionsBeforePaymentAreRejectedWithoutGatewayCall(t *testing.T) {
	f := newOrchestratorFixture()
	if _, err := f.uc.Create(context.Background(), cryptoInput("order-c")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.uc.Deliver(context.Background(), "order-c", nil); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.uc.Complete(context.Background(), "order-c"); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if f.gateway.CallCount("deliver") != 0 || f.gateway.CallCount("complete") != 0 {
		t.Fatalf("gateway must not be called: %+v", f.gateway.Calls)
	}
	stored, _ := f.orders.Stored("order-c")
	if stored.Status != model.OrderStatusPendingCryptoPayment {
		t.Fatalf("status changed to %s", stored.Status)
	}
}

func TestGatewayTimeoutLeavesStatusUnchanged(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-t")
	f.gateway.DeliverFn = func(context.Context, string) (*escrow.Order, error) {
		return nil, domainErrors.ErrGatewayTimeout
	}

	if _, err := f.uc.Deliver(context.Background(), "order-t", nil); !errors.Is(err, domainErrors.ErrGatewayTimeout) {
		t.Fatalf("expected gateway timeout, got %v", err)
	}
	stored, _ := f.orders.Stored("order-t")
	if stored.Status != model.OrderStatusInProgress || stored.Delivered {
		t.Fatalf("order advanced after timeout: %+v", stored)
	}
}

func TestConcurrentDeliverProducesOneSuccessAndOneConflict(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-cc")

	gate := make(chan struct{})
	entered := make(chan struct{}, 2)
	f.gateway.DeliverFn = func(_ context.Context, id string) (*escrow.Order, error) {
		entered <- struct{}{}
		<-gate
		return &escrow.Order{OrderID: id, Status: model.EscrowStatusDelivered}, nil
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.uc.Deliver(context.Background(), "order-cc", []model.DeliveredWork{{FileName: "logo.png"}})
			results <- err
		}()
	}

	<-entered
	first := <-results
	close(gate)
	second := <-results

	if !errors.Is(first, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict for the racing call, got %v", first)
	}
	if second != nil {
		t.Fatalf("expected the lock holder to succeed, got %v", second)
	}

	delivered := 0
	for _, ev := range f.publisher.Events() {
		if ev.Type == model.EventDelivered {
			delivered++
		}
	}
	if delivered != 1 {
		t.Fatalf("expected one delivered event, got %d", delivered)
	}
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-v")
	f.orders.UpdateFn = func(context.Context, model.Order, int64) (*model.Order, error) {
		return nil, domainErrors.ErrConflict
	}

	if _, err := f.uc.Deliver(context.Background(), "order-v", nil); !errors.Is(err, domainErrors.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestDisputeLifecycle(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-dp")
	ctx := context.Background()

	if _, err := f.uc.Deliver(ctx, "order-dp", []model.DeliveredWork{{FileName: "logo.png"}}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := f.uc.OpenDispute(ctx, "order-dp", "wrong colors"); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := f.uc.ResolveDispute(ctx, "order-dp", "split"); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("expected unknown outcome to be rejected, got %v", err)
	}
	order, err := f.uc.ResolveDispute(ctx, "order-dp", OutcomeRefund)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if order.Status != model.OrderStatusRefunded || f.gateway.Status("escrow-1") != model.EscrowStatusRefunded {
		t.Fatalf("unexpected result: local=%s remote=%s", order.Status, f.gateway.Status("escrow-1"))
	}

	want := []model.EventType{
		model.EventOrderCreated, model.EventPaymentConfirmed, model.EventDelivered,
		model.EventDisputed, model.EventRefunded,
	}
	got := eventTypes(f.publisher.Events())
	if len(got) != len(want) {
		t.Fatalf("unexpected events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected events %v", got)
		}
	}
}

func TestCompleteSendsReceipt(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-done")
	ctx := context.Background()
	if _, err := f.uc.Deliver(ctx, "order-done", nil); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	order, err := f.uc.Complete(ctx, "order-done")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !order.Approved || order.ApprovedAt == nil || order.Status != model.OrderStatusCompleted {
		t.Fatalf("unexpected order %+v", order)
	}
	jobs := f.publisher.EmailJobs()
	last := jobs[len(jobs)-1]
	if last.Template != messaging.TemplateOrderReceipt || last.ReceiverEmail != "bob@example.com" {
		t.Fatalf("unexpected receipt %+v", last)
	}
}

func TestStandardPaymentPath(t *testing.T) {
	f := newOrchestratorFixture()
	input := cryptoInput("order-s")
	input.PaymentType = model.PaymentTypeStandard
	input.CryptoPayment = nil
	ctx := context.Background()
	if _, err := f.uc.Create(ctx, input); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.uc.ConfirmPayment(ctx, "order-s", "0xabc", 1); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("crypto confirmation must be rejected for standard order, got %v", err)
	}
	if _, err := f.uc.ConfirmStandardPayment(ctx, "order-s", ""); !errors.Is(err, domainErrors.ErrInvalidOrder) {
		t.Fatalf("expected missing reference to be rejected, got %v", err)
	}
	order, err := f.uc.ConfirmStandardPayment(ctx, "order-s", "pi_123")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if order.Status != model.OrderStatusInProgress || order.PaymentRef != "pi_123" {
		t.Fatalf("unexpected order %+v", order)
	}
	if _, err := f.uc.OpenDispute(ctx, "order-s", "x"); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("disputes are crypto only, got %v", err)
	}
	if len(f.gateway.Calls) != 0 {
		t.Fatalf("gateway must not be called: %+v", f.gateway.Calls)
	}
}

func TestCancelPassesReason(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-x")

	order, err := f.uc.Cancel(context.Background(), "order-x", "buyer changed mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !order.Cancelled || order.Offer.Reason != "buyer changed mind" || order.CryptoPayment.CancelReason != "buyer changed mind" {
		t.Fatalf("unexpected order %+v", order)
	}
	if f.gateway.Status("escrow-1") != model.EscrowStatusCancelled {
		t.Fatalf("escrow not cancelled: %s", f.gateway.Status("escrow-1"))
	}
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	f := newOrchestratorFixture()
	f.publisher.Err = broker.ErrNotConnected

	if _, err := f.uc.Create(context.Background(), cryptoInput("order-p")); err != nil {
		t.Fatalf("create must succeed without broker: %v", err)
	}
	order, err := f.uc.ConfirmPayment(context.Background(), "order-p", "0xabc", 5)
	if err != nil || order.Status != model.OrderStatusInProgress {
		t.Fatalf("unexpected result %+v err=%v", order, err)
	}
	if len(f.publisher.Items) != 0 {
		t.Fatalf("nothing should reach the broker, got %+v", f.publisher.Items)
	}
	if pending, _ := f.orders.PendingOutbox(context.Background(), time.Now().Add(time.Hour), 0); len(pending) != 3 {
		t.Fatalf("expected created, payment and email messages pending, got %d", len(pending))
	}
}

func TestRelayOutboxPublishesMessagesTheBrokerMissed(t *testing.T) {
	f := newOrchestratorFixture()
	f.publisher.Err = broker.ErrNotConnected

	if _, err := f.uc.Create(context.Background(), cryptoInput("order-r")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.uc.ConfirmPayment(context.Background(), "order-r", "0xabc", 5); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}

	later := time.Now().Add(time.Minute)
	f.uc.now = func() time.Time { return later }

	if relayed, err := f.uc.RelayOutbox(context.Background(), time.Second, 10); err == nil || relayed != 0 {
		t.Fatalf("expected relay to stop while broker is down, relayed=%d err=%v", relayed, err)
	}

	f.publisher.Err = nil
	relayed, err := f.uc.RelayOutbox(context.Background(), time.Second, 10)
	if err != nil || relayed != 3 {
		t.Fatalf("unexpected relay result %d err=%v", relayed, err)
	}

	got := eventTypes(f.publisher.Events())
	if len(got) != 2 || got[0] != model.EventOrderCreated || got[1] != model.EventPaymentConfirmed {
		t.Fatalf("unexpected relayed events %v", got)
	}
	if jobs := f.publisher.EmailJobs(); len(jobs) != 1 || jobs[0].Template != messaging.TemplateOrderPlaced {
		t.Fatalf("unexpected relayed email jobs %+v", jobs)
	}
	if got := testutil.ToFloat64(f.metrics.OutboxRelayed.WithLabelValues("ok")); got != 3 {
		t.Fatalf("unexpected relayed counter %v", got)
	}

	if relayed, err := f.uc.RelayOutbox(context.Background(), time.Second, 10); err != nil || relayed != 0 {
		t.Fatalf("published messages must not be relayed again, relayed=%d err=%v", relayed, err)
	}
}

func TestDispatchMarksPublishedMessages(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-d")

	for _, m := range f.orders.Outbox() {
		if m.PublishedAt == nil {
			t.Fatalf("message %s left pending after successful publish", m.ID)
		}
	}

	later := time.Now().Add(time.Minute)
	f.uc.now = func() time.Time { return later }
	if relayed, err := f.uc.RelayOutbox(context.Background(), time.Second, 10); err != nil || relayed != 0 {
		t.Fatalf("unexpected relay result %d err=%v", relayed, err)
	}
}

func TestOrphanedOrderRejectsTransitions(t *testing.T) {
	f := newOrchestratorFixture()
	order := cryptoInput("order-orphan")
	order.Status = model.OrderStatusPendingCryptoPayment
	order.Orphaned = true
	f.orders.Put(order)

	if _, err := f.uc.Cancel(context.Background(), "order-orphan", "x"); !errors.Is(err, domainErrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestReconcileReplaysMissedTransitions(t *testing.T) {
	f := newOrchestratorFixture()
	if _, err := f.uc.Create(context.Background(), cryptoInput("order-lag")); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.gateway.SetStatus("escrow-1", model.EscrowStatusDelivered)

	result, err := f.uc.Reconcile(context.Background(), "order-lag")
	if err != nil || result != ReconcileAdvanced {
		t.Fatalf("unexpected result %s err=%v", result, err)
	}
	stored, _ := f.orders.Stored("order-lag")
	if stored.Status != model.OrderStatusDelivered || stored.CryptoPayment.EscrowStatus != model.EscrowStatusDelivered {
		t.Fatalf("order not caught up: %+v", stored)
	}
	if f.gateway.CallCount("confirm_payment") != 0 || f.gateway.CallCount("deliver") != 0 {
		t.Fatalf("reconciliation must not call mutating gateway operations: %+v", f.gateway.Calls)
	}

	got := eventTypes(f.publisher.Events())
	if len(got) != 3 || got[1] != model.EventPaymentConfirmed || got[2] != model.EventDelivered {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestReconcileTouchesOrderInSync(t *testing.T) {
	f := newOrchestratorFixture()
	created, err := f.uc.Create(context.Background(), cryptoInput("order-sync"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := f.uc.Reconcile(context.Background(), "order-sync")
	if err != nil || result != ReconcileInSync {
		t.Fatalf("unexpected result %s err=%v", result, err)
	}
	stored, _ := f.orders.Stored("order-sync")
	if stored.Version != created.Version+1 || stored.Status != created.Status {
		t.Fatalf("expected touched order, got %+v", stored)
	}
}

func TestReconcileCompensatesOrderWithoutEscrow(t *testing.T) {
	f := newOrchestratorFixture()
	order := cryptoInput("order-half")
	order.Status = model.OrderStatusPendingCryptoPayment
	f.orders.Put(order)

	result, err := f.uc.Reconcile(context.Background(), "order-half")
	if err != nil || result != ReconcileCompensated {
		t.Fatalf("unexpected result %s err=%v", result, err)
	}
	if _, ok := f.orders.Stored("order-half"); ok {
		t.Fatal("expected order to be removed")
	}
}

func TestReconcileFlagsMissingEscrowOrder(t *testing.T) {
	f := newOrchestratorFixture()
	order := cryptoInput("order-ghost")
	order.Status = model.OrderStatusInProgress
	order.CryptoPayment.EscrowOrderID = "escrow-ghost"
	f.orders.Put(order)

	result, err := f.uc.Reconcile(context.Background(), "order-ghost")
	if err != nil || result != ReconcileOrphaned {
		t.Fatalf("unexpected result %s err=%v", result, err)
	}
	stored, _ := f.orders.Stored("order-ghost")
	if !stored.Orphaned {
		t.Fatal("expected order to be flagged orphaned")
	}
}

func TestReconcileReportsDivergence(t *testing.T) {
	f := newOrchestratorFixture()
	f.paidOrder(t, "order-div")
	if _, err := f.uc.Cancel(context.Background(), "order-div", "x"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	order, _ := f.orders.Stored("order-div")
	order.Status = model.OrderStatusInProgress
	f.orders.Put(order)
	f.gateway.SetStatus("escrow-1", model.EscrowStatusRefunded)

	result, err := f.uc.Reconcile(context.Background(), "order-div")
	if !errors.Is(err, domainErrors.ErrInvalidTransition) || result != ReconcileDiverged {
		t.Fatalf("unexpected result %s err=%v", result, err)
	}
}

func TestReconcileSkipsLockedOrder(t *testing.T) {
	f := newOrchestratorFixture()
	locker := lock.NewLocalLocker()
	f.uc.locker = locker
	release, err := locker.Acquire(context.Background(), "order-busy")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	result, err := f.uc.Reconcile(context.Background(), "order-busy")
	if err != nil || result != ReconcileSkipped {
		t.Fatalf("unexpected result %s err=%v", result, err)
	}
}

func TestStaleOrdersUsesThreshold(t *testing.T) {
	f := newOrchestratorFixture()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.uc.now = func() time.Time { return now }

	var gotCutoff time.Time
	var gotStatuses []model.OrderStatus
	f.orders.ListStaleFn = func(_ context.Context, statuses []model.OrderStatus, olderThan time.Time, limit int) ([]model.Order, error) {
		gotCutoff, gotStatuses = olderThan, statuses
		if limit != 10 {
			t.Fatalf("unexpected limit %d", limit)
		}
		return nil, nil
	}

	if _, err := f.uc.StaleOrders(context.Background(), 5*time.Minute, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotCutoff.Equal(now.Add(-5*time.Minute)) || len(gotStatuses) != len(ReconcileStatuses) {
		t.Fatalf("unexpected query cutoff=%s statuses=%v", gotCutoff, gotStatuses)
	}
}
