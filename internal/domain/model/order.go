package model

import (
	"strconv"
	"strings"
	"time"
)

// PaymentType selects how the buyer pays for an order.
type PaymentType string

const (
	PaymentTypeStandard PaymentType = "standard"
	PaymentTypeCrypto   PaymentType = "crypto"
)

// OrderStatus describes order lifecycle.
type OrderStatus string

const (
	OrderStatusPendingPayment       OrderStatus = "pending_payment"
	OrderStatusPendingCryptoPayment OrderStatus = "pending_crypto_payment"
	OrderStatusInProgress           OrderStatus = "in_progress"
	OrderStatusDelivered            OrderStatus = "delivered"
	OrderStatusCompleted            OrderStatus = "completed"
	OrderStatusCancelled            OrderStatus = "cancelled"
	OrderStatusDisputed             OrderStatus = "disputed"
	OrderStatusRefunded             OrderStatus = "refunded"
)

// Terminal reports whether no further transition leaves the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// EscrowStatus mirrors the status of the remote escrow order.
type EscrowStatus string

const (
	EscrowStatusPending   EscrowStatus = "pending"
	EscrowStatusCreated   EscrowStatus = "created"
	EscrowStatusPaid      EscrowStatus = "paid"
	EscrowStatusDelivered EscrowStatus = "delivered"
	EscrowStatusCompleted EscrowStatus = "completed"
	EscrowStatusDisputed  EscrowStatus = "disputed"
	EscrowStatusCancelled EscrowStatus = "cancelled"
	EscrowStatusRefunded  EscrowStatus = "refunded"
)

// Party identifies a buyer or a seller as copied into the order.
type Party struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// OrderEvents keeps lifecycle timestamps in the order they happen.
type OrderEvents struct {
	PlaceOrder     *time.Time `json:"placeOrder,omitempty"`
	OrderStarted   *time.Time `json:"orderStarted,omitempty"`
	OrderDelivered *time.Time `json:"orderDelivered,omitempty"`
	OrderApproved  *time.Time `json:"orderApproved,omitempty"`
}

// Offer is the seller offer the order was placed from.
type Offer struct {
	GigTitle        string  `json:"gigTitle"`
	Price           float64 `json:"price"`
	Description     string  `json:"description"`
	DeliveryInDays  int     `json:"deliveryInDays"`
	OldDeliveryDate string  `json:"oldDeliveryDate,omitempty"`
	NewDeliveryDate string  `json:"newDeliveryDate,omitempty"`
	Accepted        bool    `json:"accepted"`
	Cancelled       bool    `json:"cancelled"`
	Reason          string  `json:"reason,omitempty"`
}

// DeliveredWork is a single artifact attached on delivery.
type DeliveredWork struct {
	Message  string `json:"message"`
	File     string `json:"file"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	FileName string `json:"fileName"`
}

// CryptoPayment is embedded into crypto orders and mirrors the escrow record.
type CryptoPayment struct {
	TokenAddress    string       `json:"tokenAddress"`
	TokenSymbol     string       `json:"tokenSymbol"`
	BuyerWallet     string       `json:"buyerWallet"`
	SellerWallet    string       `json:"sellerWallet"`
	ChainID         int64        `json:"chainId"`
	EscrowOrderID   string       `json:"escrowOrderId,omitempty"`
	EscrowStatus    EscrowStatus `json:"escrowStatus"`
	TransactionHash string       `json:"transactionHash,omitempty"`
	BlockNumber     uint64       `json:"blockNumber,omitempty"`
	CancelReason    string       `json:"cancelReason,omitempty"`
}

// Order is a marketplace order. Values are replaced wholesale on every transition.
type Order struct {
	ID             string
	Buyer          Party
	Seller         Party
	GigID          string
	GigTitle       string
	GigDescription string
	Price          float64
	PaymentType    PaymentType
	Status         OrderStatus
	Delivered      bool
	Approved       bool
	Cancelled      bool
	Events         OrderEvents
	ApprovedAt     *time.Time
	Offer          Offer
	DeliveredWork  []DeliveredWork
	CryptoPayment  *CryptoPayment
	PaymentRef     string
	Orphaned       bool
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsCrypto reports whether the order is paid through escrow.
func (o Order) IsCrypto() bool {
	return o.PaymentType == PaymentTypeCrypto
}

// EscrowOrderID returns the attached escrow id or empty string.
func (o Order) EscrowOrderID() string {
	if o.CryptoPayment == nil {
		return ""
	}
	return o.CryptoPayment.EscrowOrderID
}

// Amount formats the price the way the escrow service expects it.
func (o Order) Amount() string {
	return strconv.FormatFloat(o.Price, 'f', 2, 64)
}

// Validate checks shape invariants of a new order.
func (o Order) Validate() []string {
	var problems []string
	if strings.TrimSpace(o.Buyer.ID) == "" {
		problems = append(problems, "buyer id is required")
	}
	if strings.TrimSpace(o.Seller.ID) == "" {
		problems = append(problems, "seller id is required")
	}
	if strings.TrimSpace(o.GigID) == "" {
		problems = append(problems, "gig id is required")
	}
	if o.Price <= 0 {
		problems = append(problems, "price must be positive")
	}

	switch o.PaymentType {
	case PaymentTypeStandard:
		if o.CryptoPayment != nil {
			problems = append(problems, "crypto payment is only allowed for crypto orders")
		}
	case PaymentTypeCrypto:
		cp := o.CryptoPayment
		if cp == nil {
			problems = append(problems, "crypto payment is required for crypto orders")
			break
		}
		if strings.TrimSpace(cp.BuyerWallet) == "" {
			problems = append(problems, "buyer wallet is required")
		}
		if strings.TrimSpace(cp.SellerWallet) == "" {
			problems = append(problems, "seller wallet is required")
		}
		if strings.TrimSpace(cp.TokenAddress) == "" {
			problems = append(problems, "token address is required")
		}
		if strings.TrimSpace(cp.TokenSymbol) == "" {
			problems = append(problems, "token symbol is required")
		}
		if cp.ChainID <= 0 {
			problems = append(problems, "chain id is required")
		}
	default:
		problems = append(problems, "payment type must be standard or crypto")
	}
	return problems
}

// Clone returns a deep copy so transitions never share mutable state.
func (o Order) Clone() Order {
	c := o
	c.Events = OrderEvents{
		PlaceOrder:     cloneTime(o.Events.PlaceOrder),
		OrderStarted:   cloneTime(o.Events.OrderStarted),
		OrderDelivered: cloneTime(o.Events.OrderDelivered),
		OrderApproved:  cloneTime(o.Events.OrderApproved),
	}
	c.ApprovedAt = cloneTime(o.ApprovedAt)
	if o.DeliveredWork != nil {
		c.DeliveredWork = append([]DeliveredWork(nil), o.DeliveredWork...)
	}
	if o.CryptoPayment != nil {
		cp := *o.CryptoPayment
		c.CryptoPayment = &cp
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
