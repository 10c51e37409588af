package test

import (
	"context"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/domain/repository"
)

// OrderRepositoryStub keeps orders in memory with optimistic versioning.
// Fn fields override the default behaviour of the matching method.
type OrderRepositoryStub struct {
	CreateFn        func(context.Context, model.Order) (*model.Order, error)
	UpdateFn        func(context.Context, model.Order, int64) (*model.Order, error)
	DeleteFn        func(context.Context, string) error
	MarkOrphanedFn  func(context.Context, string) error
	ListStaleFn     func(context.Context, []model.OrderStatus, time.Time, int) ([]model.Order, error)
	MarkPublishedFn func(context.Context, string) error

	mu          sync.Mutex
	orders      map[string]model.Order
	outbox      []model.OutboxMessage
	DeleteCalls int
	UpdateCalls int
}

// NewOrderRepositoryStub constructs stub repository seeded with orders.
func NewOrderRepositoryStub(orders ...model.Order) *OrderRepositoryStub {
	s := &OrderRepositoryStub{orders: make(map[string]model.Order)}
	for _, o := range orders {
		if o.Version == 0 {
			o.Version = 1
		}
		s.orders[o.ID] = o.Clone()
	}
	return s
}

// Create stores the order with version 1 together with its outbox messages.
func (s *OrderRepositoryStub) Create(ctx context.Context, order model.Order, outbox ...model.OutboxMessage) (*model.Order, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, order)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	if _, exists := s.orders[order.ID]; exists {
		return nil, domainErrors.ErrConflict
	}
	stored := order.Clone()
	stored.Version = 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.orders[order.ID] = stored
	s.outbox = append(s.outbox, outbox...)
	result := stored.Clone()
	return &result, nil
}

// GetByID returns a copy of the stored order.
func (s *OrderRepositoryStub) GetByID(ctx context.Context, orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	result := o.Clone()
	return &result, nil
}

// Update replaces the order when expectedVersion matches and appends the outbox messages.
func (s *OrderRepositoryStub) Update(ctx context.Context, order model.Order, expectedVersion int64, outbox ...model.OutboxMessage) (*model.Order, error) {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, order, expectedVersion)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdateCalls++
	current, ok := s.orders[order.ID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	if current.Version != expectedVersion {
		return nil, domainErrors.ErrConflict
	}
	stored := order.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.orders[order.ID] = stored
	s.outbox = append(s.outbox, outbox...)
	result := stored.Clone()
	return &result, nil
}

// Delete removes the order.
func (s *OrderRepositoryStub) Delete(ctx context.Context, orderID string) error {
	s.mu.Lock()
	s.DeleteCalls++
	s.mu.Unlock()
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[orderID]; !ok {
		return domainErrors.ErrNotFound
	}
	delete(s.orders, orderID)
	return nil
}

// MarkOrphaned flags the order for manual reconciliation.
func (s *OrderRepositoryStub) MarkOrphaned(ctx context.Context, orderID string) error {
	if s.MarkOrphanedFn != nil {
		return s.MarkOrphanedFn(ctx, orderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domainErrors.ErrNotFound
	}
	o.Orphaned = true
	s.orders[orderID] = o
	return nil
}

// ListByBuyer returns non-orphaned orders of the buyer.
func (s *OrderRepositoryStub) ListByBuyer(ctx context.Context, buyerID string) ([]model.Order, error) {
	return s.filter(func(o model.Order) bool { return o.Buyer.ID == buyerID && !o.Orphaned }), nil
}

// ListBySeller returns non-orphaned orders of the seller.
func (s *OrderRepositoryStub) ListBySeller(ctx context.Context, sellerID string) ([]model.Order, error) {
	return s.filter(func(o model.Order) bool { return o.Seller.ID == sellerID && !o.Orphaned }), nil
}

// ListStale returns crypto orders in statuses older than the cutoff.
func (s *OrderRepositoryStub) ListStale(ctx context.Context, statuses []model.OrderStatus, olderThan time.Time, limit int) ([]model.Order, error) {
	if s.ListStaleFn != nil {
		return s.ListStaleFn(ctx, statuses, olderThan, limit)
	}
	result := s.filter(func(o model.Order) bool {
		if !o.IsCrypto() || o.Orphaned || !o.UpdatedAt.Before(olderThan) {
			return false
		}
		for _, st := range statuses {
			if o.Status == st {
				return true
			}
		}
		return false
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// PendingOutbox returns unpublished messages created before olderThan.
func (s *OrderRepositoryStub) PendingOutbox(ctx context.Context, olderThan time.Time, limit int) ([]model.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.OutboxMessage
	for _, m := range s.outbox {
		if m.PublishedAt == nil && m.CreatedAt.Before(olderThan) {
			result = append(result, m)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkPublished flags the outbox message as published.
func (s *OrderRepositoryStub) MarkPublished(ctx context.Context, messageID string) error {
	if s.MarkPublishedFn != nil {
		return s.MarkPublishedFn(ctx, messageID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == messageID && s.outbox[i].PublishedAt == nil {
			at := time.Now().UTC()
			s.outbox[i].PublishedAt = &at
			return nil
		}
	}
	return domainErrors.ErrNotFound
}

// Outbox returns a copy of every stored outbox message.
func (s *OrderRepositoryStub) Outbox() []model.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxMessage(nil), s.outbox...)
}

// Stored returns the current copy of an order and whether it exists.
func (s *OrderRepositoryStub) Stored(orderID string) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	return o.Clone(), ok
}

// Put writes an order directly, bypassing version checks.
func (s *OrderRepositoryStub) Put(order model.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()
	s.orders[order.ID] = order.Clone()
}

func (s *OrderRepositoryStub) init() {
	if s.orders == nil {
		s.orders = make(map[string]model.Order)
	}
}

func (s *OrderRepositoryStub) filter(keep func(model.Order) bool) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Order
	for _, o := range s.orders {
		if keep(o) {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// NotificationRepositoryStub keeps notifications in memory.
type NotificationRepositoryStub struct {
	CreateFn func(context.Context, model.Notification) (*model.Notification, error)

	mu    sync.Mutex
	Items []model.Notification
}

// Create appends a notification.
func (s *NotificationRepositoryStub) Create(ctx context.Context, n model.Notification) (*model.Notification, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Items {
		if existing.ID == n.ID {
			return nil, domainErrors.ErrAlreadyProcessed
		}
	}
	n.CreatedAt = time.Now().UTC()
	s.Items = append(s.Items, n)
	return &n, nil
}

// ListByRecipient returns notifications addressed to userTo.
func (s *NotificationRepositoryStub) ListByRecipient(ctx context.Context, userTo string) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Notification
	for _, n := range s.Items {
		if n.UserTo == userTo {
			result = append(result, n)
		}
	}
	return result, nil
}

// MarkAsRead sets the read flag.
func (s *NotificationRepositoryStub) MarkAsRead(ctx context.Context, notificationID string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Items {
		if s.Items[i].ID == notificationID {
			s.Items[i].IsRead = true
			n := s.Items[i]
			return &n, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

// SellerRepositoryStub emulates the seller table and the processed-message ledger.
type SellerRepositoryStub struct {
	Err error

	mu        sync.Mutex
	Sellers   map[string]*model.Seller
	processed map[string]struct{}
}

// NewSellerRepositoryStub constructs an empty seller store.
func NewSellerRepositoryStub() *SellerRepositoryStub {
	return &SellerRepositoryStub{
		Sellers:   make(map[string]*model.Seller),
		processed: make(map[string]struct{}),
	}
}

// Get returns a copy of the seller.
func (s *SellerRepositoryStub) Get(ctx context.Context, sellerID string) (*model.Seller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seller, ok := s.Sellers[sellerID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	result := *seller
	return &result, nil
}

// SetTotals overwrites provided counters.
func (s *SellerRepositoryStub) SetTotals(ctx context.Context, sellerID string, totals model.SellerTotals) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seller := s.seller(sellerID)
	if totals.OngoingJobs != nil {
		seller.OngoingJobs = *totals.OngoingJobs
	}
	if totals.CompletedJobs != nil {
		seller.CompletedJobs = *totals.CompletedJobs
	}
	if totals.TotalEarnings != nil {
		seller.TotalEarnings = *totals.TotalEarnings
	}
	if totals.RecentDelivery != nil {
		seller.RecentDelivery = totals.RecentDelivery
	}
	return nil
}

// SetGigCount overwrites the gig counter.
func (s *SellerRepositoryStub) SetGigCount(ctx context.Context, sellerID string, count int) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seller(sellerID).TotalGigs = count
	return nil
}

// ApplyDelta applies a relative change once per key.
func (s *SellerRepositoryStub) ApplyDelta(ctx context.Context, messageKey, sellerID string, delta model.SellerDelta) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mark(messageKey) {
		return domainErrors.ErrAlreadyProcessed
	}
	seller := s.seller(sellerID)
	seller.OngoingJobs = max(seller.OngoingJobs+delta.OngoingJobs, 0)
	seller.CompletedJobs += delta.CompletedJobs
	seller.CancelledJobs += delta.CancelledJobs
	seller.TotalEarnings += delta.TotalEarnings
	if delta.RecentDelivery != nil {
		seller.RecentDelivery = delta.RecentDelivery
	}
	return nil
}

// ApplyReview adds a rating once per key.
func (s *SellerRepositoryStub) ApplyReview(ctx context.Context, messageKey string, review model.Review) error {
	if s.Err != nil {
		return s.Err
	}
	if review.Rating < 1 || review.Rating > 5 {
		return domainErrors.ErrInvalidOrder
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mark(messageKey) {
		return domainErrors.ErrAlreadyProcessed
	}
	seller := s.seller(review.SellerID)
	seller.RatingsCount++
	seller.RatingSum += review.Rating
	seller.RatingCategories[review.Rating-1]++
	return nil
}

func (s *SellerRepositoryStub) seller(id string) *model.Seller {
	if s.Sellers == nil {
		s.Sellers = make(map[string]*model.Seller)
	}
	seller, ok := s.Sellers[id]
	if !ok {
		seller = &model.Seller{ID: id}
		s.Sellers[id] = seller
	}
	return seller
}

func (s *SellerRepositoryStub) mark(key string) bool {
	if s.processed == nil {
		s.processed = make(map[string]struct{})
	}
	if _, seen := s.processed[key]; seen {
		return false
	}
	s.processed[key] = struct{}{}
	return true
}

// BuyerRepositoryStub keeps buyers in memory.
type BuyerRepositoryStub struct {
	Err error

	mu     sync.Mutex
	Buyers map[string]*model.Buyer
}

// NewBuyerRepositoryStub constructs an empty buyer store.
func NewBuyerRepositoryStub() *BuyerRepositoryStub {
	return &BuyerRepositoryStub{Buyers: make(map[string]*model.Buyer)}
}

// Get returns a copy of the buyer.
func (s *BuyerRepositoryStub) Get(ctx context.Context, buyerID string) (*model.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Buyers[buyerID]
	if !ok {
		return nil, domainErrors.ErrNotFound
	}
	result := *b
	result.PurchasedGigs = append([]string(nil), b.PurchasedGigs...)
	return &result, nil
}

// Upsert replaces profile fields and keeps purchases.
func (s *BuyerRepositoryStub) Upsert(ctx context.Context, buyer model.Buyer) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.buyer(buyer.ID)
	buyer.PurchasedGigs = existing.PurchasedGigs
	*existing = buyer
	return nil
}

// AddPurchasedGig adds gigID unless already present.
func (s *BuyerRepositoryStub) AddPurchasedGig(ctx context.Context, buyerID, gigID string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buyer(buyerID)
	for _, g := range b.PurchasedGigs {
		if g == gigID {
			return nil
		}
	}
	b.PurchasedGigs = append(b.PurchasedGigs, gigID)
	return nil
}

// RemovePurchasedGig drops every occurrence of gigID.
func (s *BuyerRepositoryStub) RemovePurchasedGig(ctx context.Context, buyerID, gigID string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Buyers[buyerID]
	if !ok {
		return nil
	}
	kept := b.PurchasedGigs[:0]
	for _, g := range b.PurchasedGigs {
		if g != gigID {
			kept = append(kept, g)
		}
	}
	b.PurchasedGigs = kept
	return nil
}

func (s *BuyerRepositoryStub) buyer(id string) *model.Buyer {
	if s.Buyers == nil {
		s.Buyers = make(map[string]*model.Buyer)
	}
	b, ok := s.Buyers[id]
	if !ok {
		b = &model.Buyer{ID: id}
		s.Buyers[id] = b
	}
	return b
}

var (
	_ repository.OrderRepository        = (*OrderRepositoryStub)(nil)
	_ repository.NotificationRepository = (*NotificationRepositoryStub)(nil)
	_ repository.SellerRepository       = (*SellerRepositoryStub)(nil)
	_ repository.BuyerRepository        = (*BuyerRepositoryStub)(nil)
)
