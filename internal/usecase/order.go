package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/polkiloo/jobber/internal/adapter/escrow"
	"github.com/polkiloo/jobber/internal/adapter/lock"
	"github.com/polkiloo/jobber/internal/broker"
	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/domain/repository"
	"github.com/polkiloo/jobber/internal/messaging"
	"github.com/polkiloo/jobber/internal/metrics"
)

// Publisher hands a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload any) error
}

// Dispute outcomes accepted by ResolveDispute.
const (
	OutcomeRelease = "release"
	OutcomeRefund  = "refund"
)

// ReconcileStatuses are the local statuses that can lag behind the escrow record.
var ReconcileStatuses = []model.OrderStatus{
	model.OrderStatusPendingCryptoPayment,
	model.OrderStatusInProgress,
	model.OrderStatusDelivered,
	model.OrderStatusDisputed,
}

// OrderOrchestrator drives the order state machine across the store and the escrow gateway.
type OrderOrchestrator struct {
	orders    repository.OrderRepository
	gateway   escrow.Client
	publisher Publisher
	locker    lock.Locker
	metrics   *metrics.Metrics
	logger    *slog.Logger

	now                 func() time.Time
	newID               func() string
	compensateRetries   uint64
	compensateInterval  time.Duration
	compensationTimeout time.Duration
}

// NewOrderOrchestrator constructs OrderOrchestrator.
func NewOrderOrchestrator(
	orders repository.OrderRepository,
	gateway escrow.Client,
	publisher Publisher,
	locker lock.Locker,
	m *metrics.Metrics,
	logger *slog.Logger,
) *OrderOrchestrator {
	return &OrderOrchestrator{
		orders:              orders,
		gateway:             gateway,
		publisher:           publisher,
		locker:              locker,
		metrics:             m,
		logger:              logger,
		now:                 func() time.Time { return time.Now().UTC() },
		newID:               uuid.NewString,
		compensateRetries:   4,
		compensateInterval:  200 * time.Millisecond,
		compensationTimeout: 30 * time.Second,
	}
}

// Create stores a new order. Crypto orders additionally get an escrow record;
// if that fails the stored order is removed before the error is returned.
func (u *OrderOrchestrator) Create(ctx context.Context, input model.Order) (*model.Order, error) {
	if problems := input.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", domainErrors.ErrInvalidOrder, strings.Join(problems, "; "))
	}

	at := u.now()
	draft := newDraft(input, at)
	if draft.ID == "" {
		draft.ID = u.newID()
	}

	if !draft.IsCrypto() {
		outbox, err := u.createdOutbox(draft, at)
		if err != nil {
			return nil, err
		}
		created, err := u.orders.Create(ctx, draft, outbox...)
		if err != nil {
			return nil, fmt.Errorf("store order: %w", err)
		}
		u.dispatch(ctx, outbox)
		return created, nil
	}

	created, err := u.orders.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	cp := created.CryptoPayment
	remote, err := u.gateway.CreateOrder(ctx, escrow.CreateRequest{
		JobberOrderID: created.ID,
		BuyerAddress:  cp.BuyerWallet,
		SellerAddress: cp.SellerWallet,
		TokenAddress:  cp.TokenAddress,
		TokenSymbol:   cp.TokenSymbol,
		Amount:        created.Amount(),
		ChainID:       cp.ChainID,
	})
	if err != nil {
		u.logger.Warn("escrow order creation failed", slog.String("order_id", created.ID), slog.Any("error", err))
		u.compensate(ctx, created.ID, err)
		return nil, err
	}

	attached := created.Clone()
	attached.CryptoPayment.EscrowOrderID = remote.OrderID
	attached.CryptoPayment.EscrowStatus = remote.Status
	if attached.CryptoPayment.EscrowStatus == "" {
		attached.CryptoPayment.EscrowStatus = model.EscrowStatusCreated
	}

	var saved *model.Order
	outbox, err := u.createdOutbox(attached, at)
	if err == nil {
		saved, err = u.orders.Update(context.WithoutCancel(ctx), attached, created.Version, outbox...)
	}
	if err != nil {
		u.logger.Error("attach escrow order failed",
			slog.String("order_id", created.ID),
			slog.String("escrow_order_id", remote.OrderID),
			slog.Any("error", err))
		u.abandonEscrow(ctx, remote.OrderID)
		u.compensate(ctx, created.ID, err)
		return nil, fmt.Errorf("attach escrow order: %w", err)
	}

	u.dispatch(ctx, outbox)
	return saved, nil
}

// ConfirmPayment records an on-chain payment for a crypto order.
func (u *OrderOrchestrator) ConfirmPayment(ctx context.Context, orderID, transactionHash string, blockNumber uint64) (*model.Order, error) {
	if strings.TrimSpace(transactionHash) == "" {
		return nil, fmt.Errorf("%w: transaction hash is required", domainErrors.ErrInvalidOrder)
	}
	return u.transition(ctx, orderID, step{
		transition: model.Transition{
			Kind:            model.TransitionConfirmPayment,
			TransactionHash: transactionHash,
			BlockNumber:     blockNumber,
		},
		only: model.PaymentTypeCrypto,
		remote: func(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
			return u.gateway.ConfirmPayment(ctx, escrowOrderID, transactionHash, blockNumber)
		},
	})
}

// ConfirmStandardPayment records a card payment; no gateway is involved.
func (u *OrderOrchestrator) ConfirmStandardPayment(ctx context.Context, orderID, paymentReference string) (*model.Order, error) {
	if strings.TrimSpace(paymentReference) == "" {
		return nil, fmt.Errorf("%w: payment reference is required", domainErrors.ErrInvalidOrder)
	}
	return u.transition(ctx, orderID, step{
		transition: model.Transition{Kind: model.TransitionConfirmPayment, PaymentReference: paymentReference},
		only:       model.PaymentTypeStandard,
	})
}

// Deliver attaches the delivered work.
func (u *OrderOrchestrator) Deliver(ctx context.Context, orderID string, work []model.DeliveredWork) (*model.Order, error) {
	return u.transition(ctx, orderID, step{
		transition: model.Transition{Kind: model.TransitionDeliver, DeliveredWork: work},
		remote: func(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
			return u.gateway.MarkDelivered(ctx, escrowOrderID)
		},
	})
}

// Complete approves the delivery and releases escrowed funds.
func (u *OrderOrchestrator) Complete(ctx context.Context, orderID string) (*model.Order, error) {
	return u.transition(ctx, orderID, step{
		transition: model.Transition{Kind: model.TransitionComplete},
		remote: func(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
			return u.gateway.CompleteOrder(ctx, escrowOrderID)
		},
	})
}

// Cancel cancels an order that has not been delivered yet.
func (u *OrderOrchestrator) Cancel(ctx context.Context, orderID, reason string) (*model.Order, error) {
	return u.transition(ctx, orderID, step{
		transition: model.Transition{Kind: model.TransitionCancel, Reason: reason},
		remote: func(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
			return u.gateway.CancelOrder(ctx, escrowOrderID, reason)
		},
	})
}

// OpenDispute freezes a delivered crypto order.
func (u *OrderOrchestrator) OpenDispute(ctx context.Context, orderID, reason string) (*model.Order, error) {
	return u.transition(ctx, orderID, step{
		transition: model.Transition{Kind: model.TransitionDispute, Reason: reason},
		only:       model.PaymentTypeCrypto,
		remote: func(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
			return u.gateway.OpenDispute(ctx, escrowOrderID, reason)
		},
	})
}

// ResolveDispute releases funds to the seller or refunds the buyer.
func (u *OrderOrchestrator) ResolveDispute(ctx context.Context, orderID, outcome string) (*model.Order, error) {
	var kind model.TransitionKind
	switch outcome {
	case OutcomeRelease:
		kind = model.TransitionResolveRelease
	case OutcomeRefund:
		kind = model.TransitionResolveRefund
	default:
		return nil, fmt.Errorf("%w: unknown dispute outcome %q", domainErrors.ErrInvalidTransition, outcome)
	}
	return u.transition(ctx, orderID, step{
		transition: model.Transition{Kind: kind},
		only:       model.PaymentTypeCrypto,
		remote: func(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
			return u.gateway.ResolveDispute(ctx, escrowOrderID, outcome)
		},
	})
}

// Get returns an order by id.
func (u *OrderOrchestrator) Get(ctx context.Context, orderID string) (*model.Order, error) {
	return u.orders.GetByID(ctx, orderID)
}

// ListByBuyer returns the buyer's orders.
func (u *OrderOrchestrator) ListByBuyer(ctx context.Context, buyerID string) ([]model.Order, error) {
	return u.orders.ListByBuyer(ctx, buyerID)
}

// ListBySeller returns the seller's orders.
func (u *OrderOrchestrator) ListBySeller(ctx context.Context, sellerID string) ([]model.Order, error) {
	return u.orders.ListBySeller(ctx, sellerID)
}

// StaleOrders selects crypto orders that may lag behind their escrow record.
func (u *OrderOrchestrator) StaleOrders(ctx context.Context, threshold time.Duration, limit int) ([]model.Order, error) {
	return u.orders.ListStale(ctx, ReconcileStatuses, u.now().Add(-threshold), limit)
}

// ReconcileResult describes what a reconciliation pass did to one order.
type ReconcileResult string

const (
	ReconcileInSync      ReconcileResult = "in_sync"
	ReconcileAdvanced    ReconcileResult = "advanced"
	ReconcileCompensated ReconcileResult = "compensated"
	ReconcileOrphaned    ReconcileResult = "orphaned"
	ReconcileSkipped     ReconcileResult = "skipped"
	ReconcileDiverged    ReconcileResult = "diverged"
)

// Reconcile re-reads the escrow record of a stuck order and replays the
// transitions the local store missed.
func (u *OrderOrchestrator) Reconcile(ctx context.Context, orderID string) (ReconcileResult, error) {
	release, err := u.locker.Acquire(ctx, orderID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrConflict) {
			return ReconcileSkipped, nil
		}
		return ReconcileSkipped, err
	}
	defer release()

	current, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			return ReconcileSkipped, nil
		}
		return ReconcileSkipped, err
	}
	if !current.IsCrypto() || current.Orphaned || current.Status.Terminal() {
		return ReconcileSkipped, nil
	}

	// Creation never finished: no escrow id was attached, so the order can still be removed.
	if current.EscrowOrderID() == "" {
		if u.compensate(ctx, current.ID, errors.New("escrow order was never attached")) {
			return ReconcileCompensated, nil
		}
		return ReconcileOrphaned, nil
	}

	remote, err := u.gateway.GetOrder(ctx, current.EscrowOrderID())
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			u.flagOrphaned(ctx, current.ID, fmt.Errorf("escrow order %s does not exist", current.EscrowOrderID()))
			return ReconcileOrphaned, nil
		}
		return ReconcileSkipped, err
	}

	path, err := model.CatchUpPath(*current, remote.Status)
	if err != nil {
		u.logger.Error("order diverged from escrow",
			slog.String("order_id", current.ID),
			slog.String("status", string(current.Status)),
			slog.String("escrow_status", string(remote.Status)),
			slog.Any("error", err))
		return ReconcileDiverged, err
	}

	persistCtx := context.WithoutCancel(ctx)
	if len(path) == 0 {
		// Touch the row so the sweep moves on to other orders.
		if _, err := u.orders.Update(persistCtx, *current, current.Version); err != nil {
			return ReconcileInSync, fmt.Errorf("touch order %s: %w", current.ID, err)
		}
		return ReconcileInSync, nil
	}

	for _, kind := range path {
		t := model.Transition{Kind: kind}
		if kind == model.TransitionConfirmPayment {
			t.TransactionHash = remote.TransactionHash
			t.BlockNumber = remote.BlockNumber
		}
		next, err := u.commit(persistCtx, *current, t)
		if err != nil {
			return ReconcileSkipped, fmt.Errorf("replay %s on order %s: %w", kind, current.ID, err)
		}
		current = next
	}
	u.logger.Info("order reconciled with escrow",
		slog.String("order_id", current.ID),
		slog.String("status", string(current.Status)),
		slog.Int("transitions", len(path)))
	return ReconcileAdvanced, nil
}

type step struct {
	transition model.Transition
	only       model.PaymentType
	remote     func(ctx context.Context, escrowOrderID string) (*escrow.Order, error)
}

func (u *OrderOrchestrator) transition(ctx context.Context, orderID string, s step) (*model.Order, error) {
	kind := string(s.transition.Kind)

	release, err := u.locker.Acquire(ctx, orderID)
	if err != nil {
		u.metrics.Transitions.WithLabelValues(kind, "conflict").Inc()
		return nil, err
	}
	defer release()

	current, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Orphaned {
		return nil, fmt.Errorf("%w: order %s awaits manual reconciliation", domainErrors.ErrInvalidTransition, orderID)
	}
	if s.only != "" && current.PaymentType != s.only {
		u.metrics.Transitions.WithLabelValues(kind, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s requires a %s order", domainErrors.ErrInvalidTransition, kind, s.only)
	}
	if err := model.CanApply(*current, s.transition.Kind); err != nil {
		u.metrics.Transitions.WithLabelValues(kind, "rejected").Inc()
		return nil, err
	}

	if current.IsCrypto() && s.remote != nil {
		if _, err := s.remote(ctx, current.EscrowOrderID()); err != nil {
			u.metrics.Transitions.WithLabelValues(kind, "gateway_error").Inc()
			return nil, err
		}
	}

	// The escrow record has moved; the local write must not be abandoned with the request.
	saved, err := u.commit(context.WithoutCancel(ctx), *current, s.transition)
	if err != nil && current.IsCrypto() && s.remote != nil {
		u.logger.Warn("escrow advanced but local state lags, left to reconciliation",
			slog.String("order_id", orderID),
			slog.String("transition", kind),
			slog.Any("error", err))
	}
	return saved, err
}

func (u *OrderOrchestrator) commit(ctx context.Context, current model.Order, t model.Transition) (*model.Order, error) {
	kind := string(t.Kind)
	at := u.now()
	next, err := model.Apply(current, t, at)
	if err != nil {
		u.metrics.Transitions.WithLabelValues(kind, "rejected").Inc()
		return nil, err
	}

	outbox, err := u.transitionOutbox(current, next, t.Kind, at)
	if err != nil {
		return nil, err
	}

	saved, err := u.orders.Update(ctx, next, current.Version, outbox...)
	if err != nil {
		u.metrics.Transitions.WithLabelValues(kind, "store_error").Inc()
		return nil, err
	}
	u.metrics.Transitions.WithLabelValues(kind, "ok").Inc()

	u.dispatch(ctx, outbox)
	return saved, nil
}

func (u *OrderOrchestrator) createdOutbox(order model.Order, at time.Time) ([]model.OutboxMessage, error) {
	ev := model.NewDomainEvent(u.newID(), model.EventOrderCreated, order, order, at)
	ev.PreviousStatus = ""
	msg, err := model.NewOutboxMessage(ev.ID, order.ID, broker.OrderEventsExchange, "", ev, at)
	if err != nil {
		return nil, err
	}
	return []model.OutboxMessage{msg}, nil
}

// transitionOutbox builds the messages announcing prev becoming next.
func (u *OrderOrchestrator) transitionOutbox(prev, next model.Order, kind model.TransitionKind, at time.Time) ([]model.OutboxMessage, error) {
	ev := model.NewDomainEvent(u.newID(), model.EventFor(kind), prev, next, at)
	msg, err := model.NewOutboxMessage(ev.ID, next.ID, broker.OrderEventsExchange, "", ev, at)
	if err != nil {
		return nil, err
	}
	outbox := []model.OutboxMessage{msg}

	if job, ok := emailFor(kind, next); ok {
		email, err := model.NewOutboxMessage(u.newID(), next.ID, broker.OrderEmailExchange, broker.OrderEmailKey, job, at)
		if err != nil {
			return nil, err
		}
		outbox = append(outbox, email)
	}
	return outbox, nil
}

// dispatch publishes freshly stored outbox messages. Whatever the broker does
// not accept stays pending for RelayOutbox; the caller never sees the error.
func (u *OrderOrchestrator) dispatch(ctx context.Context, outbox []model.OutboxMessage) {
	ctx = context.WithoutCancel(ctx)
	for _, m := range outbox {
		if err := u.publishStored(ctx, m); err != nil {
			u.logger.Warn("publish failed, message left in outbox",
				slog.String("message_id", m.ID),
				slog.String("order_id", m.OrderID),
				slog.String("exchange", m.Exchange),
				slog.Any("error", err))
			return
		}
	}
}

// RelayOutbox publishes messages still pending after age, oldest first. It
// stops at the first publish failure so later messages do not overtake it.
func (u *OrderOrchestrator) RelayOutbox(ctx context.Context, age time.Duration, limit int) (int, error) {
	pending, err := u.orders.PendingOutbox(ctx, u.now().Add(-age), limit)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}

	relayed := 0
	for _, m := range pending {
		if err := u.publishStored(ctx, m); err != nil {
			u.metrics.OutboxRelayed.WithLabelValues("error").Inc()
			return relayed, fmt.Errorf("relay message %s: %w", m.ID, err)
		}
		u.metrics.OutboxRelayed.WithLabelValues("ok").Inc()
		relayed++
	}
	return relayed, nil
}

func (u *OrderOrchestrator) publishStored(ctx context.Context, m model.OutboxMessage) error {
	if err := u.publisher.Publish(ctx, m.Exchange, m.RoutingKey, m.Payload); err != nil {
		return err
	}
	// A message that stays pending is published again; consumers are idempotent.
	if err := u.orders.MarkPublished(ctx, m.ID); err != nil && !errors.Is(err, domainErrors.ErrNotFound) {
		u.logger.Warn("mark outbox message published failed",
			slog.String("message_id", m.ID),
			slog.Any("error", err))
	}
	return nil
}

// compensate deletes an order whose creation could not finish. It reports
// whether the order is gone; otherwise the order is flagged orphaned.
func (u *OrderOrchestrator) compensate(ctx context.Context, orderID string, cause error) bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.compensationTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = u.compensateInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := u.orders.Delete(ctx, orderID)
		if err == nil || errors.Is(err, domainErrors.ErrNotFound) {
			return nil
		}
		u.logger.Warn("compensating delete failed",
			slog.String("order_id", orderID),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, u.compensateRetries), ctx))
	if err == nil {
		u.metrics.Compensations.WithLabelValues("deleted").Inc()
		u.logger.Info("order creation compensated", slog.String("order_id", orderID), slog.Any("cause", cause))
		return true
	}

	u.metrics.Compensations.WithLabelValues("failed").Inc()
	u.flagOrphaned(ctx, orderID, errors.Join(cause, err))
	return false
}

func (u *OrderOrchestrator) flagOrphaned(ctx context.Context, orderID string, cause error) {
	u.metrics.OrphanedOrders.Inc()
	if err := u.orders.MarkOrphaned(context.WithoutCancel(ctx), orderID); err != nil {
		u.logger.Error("flag orphaned order failed", slog.String("order_id", orderID), slog.Any("error", err))
	}
	u.logger.Error("orphaned order requires manual reconciliation",
		slog.String("order_id", orderID),
		slog.Any("cause", cause))
}

func (u *OrderOrchestrator) abandonEscrow(ctx context.Context, escrowOrderID string) {
	if _, err := u.gateway.CancelOrder(context.WithoutCancel(ctx), escrowOrderID, "order creation failed"); err != nil {
		u.logger.Error("cancel abandoned escrow order failed",
			slog.String("escrow_order_id", escrowOrderID),
			slog.Any("error", err))
	}
}

func newDraft(input model.Order, at time.Time) model.Order {
	draft := input.Clone()
	draft.Delivered, draft.Approved, draft.Cancelled, draft.Orphaned = false, false, false, false
	draft.Events = model.OrderEvents{}
	draft.ApprovedAt = nil
	draft.DeliveredWork = nil
	draft.PaymentRef = ""
	draft.Version = 0
	draft.CreatedAt, draft.UpdatedAt = at, at
	if draft.GigTitle == "" {
		draft.GigTitle = draft.Offer.GigTitle
	}

	if draft.IsCrypto() {
		draft.Status = model.OrderStatusPendingCryptoPayment
		cp := draft.CryptoPayment
		cp.EscrowOrderID = ""
		cp.EscrowStatus = model.EscrowStatusPending
		cp.TransactionHash = ""
		cp.BlockNumber = 0
		cp.CancelReason = ""
	} else {
		draft.Status = model.OrderStatusPendingPayment
	}
	return draft
}

func emailFor(kind model.TransitionKind, o model.Order) (messaging.EmailJob, bool) {
	var (
		template messaging.EmailTemplate
		receiver string
	)
	switch kind {
	case model.TransitionConfirmPayment:
		template, receiver = messaging.TemplateOrderPlaced, o.Seller.Email
	case model.TransitionDeliver:
		template, receiver = messaging.TemplateOrderDelivered, o.Buyer.Email
	case model.TransitionComplete, model.TransitionResolveRelease:
		template, receiver = messaging.TemplateOrderReceipt, o.Buyer.Email
	default:
		return messaging.EmailJob{}, false
	}
	if receiver == "" {
		return messaging.EmailJob{}, false
	}
	return messaging.EmailJob{
		Template:      template,
		ReceiverEmail: receiver,
		Locals: map[string]string{
			"orderId":        o.ID,
			"buyerUsername":  o.Buyer.Username,
			"sellerUsername": o.Seller.Username,
			"title":          o.GigTitle,
			"price":          o.Amount(),
		},
	}, true
}
