package test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/polkiloo/jobber/internal/adapter/escrow"
	"github.com/polkiloo/jobber/internal/broker"
	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/messaging"
)

// EscrowCall records one gateway invocation.
type EscrowCall struct {
	Operation string
	OrderID   string
	Argument  string
}

// EscrowStub emulates the escrow gateway in memory. Fn fields override operations.
type EscrowStub struct {
	CreateFn  func(context.Context, escrow.CreateRequest) (*escrow.Order, error)
	GetFn     func(context.Context, string) (*escrow.Order, error)
	ConfirmFn func(context.Context, string, string, uint64) (*escrow.Order, error)
	DeliverFn func(context.Context, string) (*escrow.Order, error)

	mu     sync.Mutex
	next   int
	orders map[string]*escrow.Order
	Calls  []EscrowCall
}

// NewEscrowStub constructs an empty gateway.
func NewEscrowStub() *EscrowStub {
	return &EscrowStub{orders: make(map[string]*escrow.Order)}
}

// CreateOrder registers a new escrow order in status created.
func (s *EscrowStub) CreateOrder(ctx context.Context, req escrow.CreateRequest) (*escrow.Order, error) {
	s.record("create", req.JobberOrderID, req.Amount)
	if s.CreateFn != nil {
		return s.CreateFn(ctx, req)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	order := &escrow.Order{
		OrderID:       fmt.Sprintf("escrow-%d", s.next),
		JobberOrderID: req.JobberOrderID,
		Status:        model.EscrowStatusCreated,
		Amount:        req.Amount,
	}
	s.ensure()
	s.orders[order.OrderID] = order
	result := *order
	return &result, nil
}

// GetOrder returns the stored escrow order.
func (s *EscrowStub) GetOrder(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
	s.record("get", escrowOrderID, "")
	if s.GetFn != nil {
		return s.GetFn(ctx, escrowOrderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[escrowOrderID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	result := *order
	return &result, nil
}

// ConfirmPayment moves the escrow order to paid.
func (s *EscrowStub) ConfirmPayment(ctx context.Context, escrowOrderID, transactionHash string, blockNumber uint64) (*escrow.Order, error) {
	s.record("confirm_payment", escrowOrderID, transactionHash)
	if s.ConfirmFn != nil {
		return s.ConfirmFn(ctx, escrowOrderID, transactionHash, blockNumber)
	}
	return s.advance(escrowOrderID, model.EscrowStatusPaid, func(o *escrow.Order) {
		o.TransactionHash = transactionHash
		o.BlockNumber = blockNumber
	})
}

// MarkDelivered moves the escrow order to delivered.
func (s *EscrowStub) MarkDelivered(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
	s.record("deliver", escrowOrderID, "")
	if s.DeliverFn != nil {
		return s.DeliverFn(ctx, escrowOrderID)
	}
	return s.advance(escrowOrderID, model.EscrowStatusDelivered, nil)
}

// CompleteOrder releases the funds.
func (s *EscrowStub) CompleteOrder(ctx context.Context, escrowOrderID string) (*escrow.Order, error) {
	s.record("complete", escrowOrderID, "")
	return s.advance(escrowOrderID, model.EscrowStatusCompleted, nil)
}

// CancelOrder cancels the escrow order.
func (s *EscrowStub) CancelOrder(ctx context.Context, escrowOrderID, reason string) (*escrow.Order, error) {
	s.record("cancel", escrowOrderID, reason)
	return s.advance(escrowOrderID, model.EscrowStatusCancelled, nil)
}

// OpenDispute moves the escrow order to disputed.
func (s *EscrowStub) OpenDispute(ctx context.Context, escrowOrderID, reason string) (*escrow.Order, error) {
	s.record("dispute", escrowOrderID, reason)
	return s.advance(escrowOrderID, model.EscrowStatusDisputed, nil)
}

// ResolveDispute settles a dispute by releasing or refunding.
func (s *EscrowStub) ResolveDispute(ctx context.Context, escrowOrderID, outcome string) (*escrow.Order, error) {
	s.record("resolve_dispute", escrowOrderID, outcome)
	status := model.EscrowStatusCompleted
	if outcome == "refund" {
		status = model.EscrowStatusRefunded
	}
	return s.advance(escrowOrderID, status, nil)
}

// SetStatus forces the remote status, emulating a drift the local store missed.
func (s *EscrowStub) SetStatus(escrowOrderID string, status model.EscrowStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()
	order, ok := s.orders[escrowOrderID]
	if !ok {
		order = &escrow.Order{OrderID: escrowOrderID}
		s.orders[escrowOrderID] = order
	}
	order.Status = status
}

// Status returns the remote status of an escrow order.
func (s *EscrowStub) Status(escrowOrderID string) model.EscrowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[escrowOrderID]; ok {
		return order.Status
	}
	return ""
}

// CallCount returns how many times operation was invoked.
func (s *EscrowStub) CallCount(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c.Operation == operation {
			n++
		}
	}
	return n
}

func (s *EscrowStub) advance(escrowOrderID string, status model.EscrowStatus, mutate func(*escrow.Order)) (*escrow.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[escrowOrderID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	order.Status = status
	if mutate != nil {
		mutate(order)
	}
	result := *order
	return &result, nil
}

func (s *EscrowStub) record(operation, orderID, argument string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, EscrowCall{Operation: operation, OrderID: orderID, Argument: argument})
}

func (s *EscrowStub) ensure() {
	if s.orders == nil {
		s.orders = make(map[string]*escrow.Order)
	}
}

// Publication is one message handed to PublisherStub.
type Publication struct {
	Exchange   string
	RoutingKey string
	Payload    any
}

// PublisherStub records published messages.
type PublisherStub struct {
	Err error

	mu    sync.Mutex
	Items []Publication
}

// Publish stores the message or returns the configured error.
func (p *PublisherStub) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	if p.Err != nil {
		return p.Err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Items = append(p.Items, Publication{Exchange: exchange, RoutingKey: routingKey, Payload: payload})
	return nil
}

// Events returns published domain events in order.
func (p *PublisherStub) Events() []model.DomainEvent {
	return payloadsOf[model.DomainEvent](p, broker.OrderEventsExchange)
}

// EmailJobs returns published order email jobs in order.
func (p *PublisherStub) EmailJobs() []messaging.EmailJob {
	return payloadsOf[messaging.EmailJob](p, broker.OrderEmailExchange)
}

// payloadsOf decodes the payloads published to exchange. Payloads arrive
// either typed or as stored JSON.
func payloadsOf[T any](p *PublisherStub, exchange string) []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result []T
	for _, item := range p.Items {
		if item.Exchange != exchange {
			continue
		}
		switch payload := item.Payload.(type) {
		case T:
			result = append(result, payload)
		case json.RawMessage:
			var v T
			if err := json.Unmarshal(payload, &v); err == nil {
				result = append(result, v)
			}
		}
	}
	return result
}

// MailerStub records email jobs.
type MailerStub struct {
	Err error

	mu   sync.Mutex
	Sent []messaging.EmailJob
}

// Send stores the job or returns the configured error.
func (m *MailerStub) Send(ctx context.Context, job messaging.EmailJob) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, job)
	return nil
}

var _ escrow.Client = (*EscrowStub)(nil)
