package model

import (
	"fmt"
	"time"
)

// EventType enumerates order domain events.
type EventType string

const (
	EventOrderCreated     EventType = "order.created"
	EventPaymentConfirmed EventType = "order.payment_confirmed"
	EventDelivered        EventType = "order.delivered"
	EventCompleted        EventType = "order.completed"
	EventCancelled        EventType = "order.cancelled"
	EventDisputed         EventType = "order.disputed"
	EventRefunded         EventType = "order.refunded"
)

// Known reports whether the event type is part of the taxonomy.
func (t EventType) Known() bool {
	switch t {
	case EventOrderCreated, EventPaymentConfirmed, EventDelivered, EventCompleted,
		EventCancelled, EventDisputed, EventRefunded:
		return true
	default:
		return false
	}
}

// OrderSnapshot is the subset of order fields consumers rely on.
type OrderSnapshot struct {
	OrderID         string      `json:"orderId"`
	BuyerID         string      `json:"buyerId"`
	BuyerUsername   string      `json:"buyerUsername"`
	BuyerEmail      string      `json:"buyerEmail"`
	BuyerPicture    string      `json:"buyerImage"`
	SellerID        string      `json:"sellerId"`
	SellerUsername  string      `json:"sellerUsername"`
	SellerEmail     string      `json:"sellerEmail"`
	SellerPicture   string      `json:"sellerImage"`
	GigID           string      `json:"gigId"`
	GigTitle        string      `json:"gigTitle"`
	Price           float64     `json:"price"`
	PaymentType     PaymentType `json:"paymentType"`
	Status          OrderStatus `json:"status"`
	EscrowOrderID   string      `json:"escrowOrderId,omitempty"`
	TransactionHash string      `json:"transactionHash,omitempty"`
	Reason          string      `json:"reason,omitempty"`
}

// DomainEvent is published once per state transition.
type DomainEvent struct {
	ID             string        `json:"id"`
	Type           EventType     `json:"type"`
	OrderID        string        `json:"orderId"`
	OccurredAt     time.Time     `json:"occurredAt"`
	PreviousStatus OrderStatus   `json:"previousStatus,omitempty"`
	Order          OrderSnapshot `json:"order"`
}

// IdempotencyKey identifies the event for at-least-once consumers.
func (e DomainEvent) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", e.OrderID, e.Type, e.OccurredAt.UnixNano())
}

// Snapshot projects an order into the event payload shape.
func Snapshot(o Order) OrderSnapshot {
	s := OrderSnapshot{
		OrderID:        o.ID,
		BuyerID:        o.Buyer.ID,
		BuyerUsername:  o.Buyer.Username,
		BuyerEmail:     o.Buyer.Email,
		BuyerPicture:   o.Buyer.Picture,
		SellerID:       o.Seller.ID,
		SellerUsername: o.Seller.Username,
		SellerEmail:    o.Seller.Email,
		SellerPicture:  o.Seller.Picture,
		GigID:          o.GigID,
		GigTitle:       o.GigTitle,
		Price:          o.Price,
		PaymentType:    o.PaymentType,
		Status:         o.Status,
		Reason:         o.Offer.Reason,
	}
	if o.CryptoPayment != nil {
		s.EscrowOrderID = o.CryptoPayment.EscrowOrderID
		s.TransactionHash = o.CryptoPayment.TransactionHash
	}
	return s
}

// NewDomainEvent builds the event emitted when prev became next.
func NewDomainEvent(id string, t EventType, prev, next Order, at time.Time) DomainEvent {
	return DomainEvent{
		ID:             id,
		Type:           t,
		OrderID:        next.ID,
		OccurredAt:     at.UTC(),
		PreviousStatus: prev.Status,
		Order:          Snapshot(next),
	}
}
