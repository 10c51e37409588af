package dto

import (
	"time"

	"github.com/polkiloo/jobber/internal/domain/model"
)

// PartyRequest identifies a buyer or seller in an order request.
type PartyRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// CryptoPaymentRequest carries wallet and token data for escrow orders.
type CryptoPaymentRequest struct {
	TokenAddress string `json:"tokenAddress"`
	TokenSymbol  string `json:"tokenSymbol"`
	BuyerWallet  string `json:"buyerWallet"`
	SellerWallet string `json:"sellerWallet"`
	ChainID      int64  `json:"chainId"`
}

// CreateOrderRequest is the body of POST /api/v1/order and /api/v1/order/crypto.
type CreateOrderRequest struct {
	OrderID        string                `json:"orderId"`
	Buyer          PartyRequest          `json:"buyer"`
	Seller         PartyRequest          `json:"seller"`
	GigID          string                `json:"gigId"`
	GigTitle       string                `json:"gigTitle"`
	GigDescription string                `json:"gigDescription"`
	Price          float64               `json:"price"`
	Offer          model.Offer           `json:"offer"`
	CryptoPayment  *CryptoPaymentRequest `json:"cryptoPayment,omitempty"`
}

// ConfirmPaymentRequest reports the on-chain payment of a crypto order.
type ConfirmPaymentRequest struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
}

// StandardPaymentRequest confirms a standard order payment.
type StandardPaymentRequest struct {
	PaymentReference string `json:"paymentReference"`
}

// DeliverRequest attaches delivered work.
type DeliverRequest struct {
	DeliveredWork []model.DeliveredWork `json:"deliveredWork"`
}

// ReasonRequest is used by cancel and dispute.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// ResolveDisputeRequest selects release or refund.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome"`
}

// OrderResponse is the public view of an order.
type OrderResponse struct {
	OrderID          string                `json:"orderId"`
	BuyerID          string                `json:"buyerId"`
	BuyerUsername    string                `json:"buyerUsername"`
	BuyerEmail       string                `json:"buyerEmail"`
	BuyerImage       string                `json:"buyerImage"`
	SellerID         string                `json:"sellerId"`
	SellerUsername   string                `json:"sellerUsername"`
	SellerEmail      string                `json:"sellerEmail"`
	SellerImage      string                `json:"sellerImage"`
	GigID            string                `json:"gigId"`
	GigTitle         string                `json:"gigTitle"`
	GigDescription   string                `json:"gigDescription"`
	Price            float64               `json:"price"`
	PaymentType      string                `json:"paymentType"`
	Status           string                `json:"status"`
	Delivered        bool                  `json:"delivered"`
	Approved         bool                  `json:"approved"`
	Cancelled        bool                  `json:"cancelled"`
	Events           model.OrderEvents     `json:"events"`
	ApprovedAt       *time.Time            `json:"approvedAt,omitempty"`
	Offer            model.Offer           `json:"offer"`
	DeliveredWork    []model.DeliveredWork `json:"deliveredWork"`
	CryptoPayment    *model.CryptoPayment  `json:"cryptoPayment,omitempty"`
	PaymentReference string                `json:"paymentReference,omitempty"`
	Orphaned         bool                  `json:"orphaned,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// OrderEnvelope wraps a single order.
type OrderEnvelope struct {
	Message string        `json:"message"`
	Order   OrderResponse `json:"order"`
}

// OrdersEnvelope wraps an order list.
type OrdersEnvelope struct {
	Message string          `json:"message"`
	Orders  []OrderResponse `json:"orders"`
}
