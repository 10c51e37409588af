// Package messaging defines the payloads exchanged over the broker and
// decodes them into closed sets of variants.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
)

// ErrMalformed is returned for payloads that cannot be decoded or miss required fields.
var ErrMalformed = errors.New("malformed message")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func unknownType(kind, tag string) error {
	return fmt.Errorf("%s message %q: %w", kind, tag, domainErrors.ErrUnknownMessageType)
}

// IsUndeliverable reports whether redelivering the message cannot help.
func IsUndeliverable(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, domainErrors.ErrUnknownMessageType)
}

// DecodeEvent parses an order domain event.
func DecodeEvent(body []byte) (model.DomainEvent, error) {
	var ev model.DomainEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, malformed("order event: %v", err)
	}
	if !ev.Type.Known() {
		return ev, unknownType("order event", string(ev.Type))
	}
	if strings.TrimSpace(ev.OrderID) == "" {
		return ev, malformed("order event without order id")
	}
	if ev.OccurredAt.IsZero() {
		return ev, malformed("order event %s without timestamp", ev.OrderID)
	}
	return ev, nil
}

// EmailTemplate names a mail template rendered by the notification service.
type EmailTemplate string

const (
	TemplateVerifyEmail            EmailTemplate = "verifyEmail"
	TemplateForgotPassword         EmailTemplate = "forgotPassword"
	TemplateResetPasswordSuccess   EmailTemplate = "resetPasswordSuccess"
	TemplateOffer                  EmailTemplate = "offer"
	TemplateOrderPlaced            EmailTemplate = "orderPlaced"
	TemplateOrderReceipt           EmailTemplate = "orderReceipt"
	TemplateOrderDelivered         EmailTemplate = "orderDelivered"
	TemplateOrderExtension         EmailTemplate = "orderExtension"
	TemplateOrderExtensionApproval EmailTemplate = "orderExtensionApproval"
)

var emailTemplates = map[EmailTemplate]struct{}{
	TemplateVerifyEmail:            {},
	TemplateForgotPassword:         {},
	TemplateResetPasswordSuccess:   {},
	TemplateOffer:                  {},
	TemplateOrderPlaced:            {},
	TemplateOrderReceipt:           {},
	TemplateOrderDelivered:         {},
	TemplateOrderExtension:         {},
	TemplateOrderExtensionApproval: {},
}

// Known reports whether the template exists.
func (t EmailTemplate) Known() bool {
	_, ok := emailTemplates[t]
	return ok
}

// EmailJob asks the notification service to send one email.
type EmailJob struct {
	Template      EmailTemplate     `json:"template"`
	ReceiverEmail string            `json:"receiverEmail"`
	Locals        map[string]string `json:"locals,omitempty"`
}

// DecodeEmailJob parses an email job.
func DecodeEmailJob(body []byte) (EmailJob, error) {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, malformed("email job: %v", err)
	}
	if !job.Template.Known() {
		return job, unknownType("email", string(job.Template))
	}
	if strings.TrimSpace(job.ReceiverEmail) == "" {
		return job, malformed("email job %s without receiver", job.Template)
	}
	return job, nil
}

// BuyerMessage is one of BuyerAuth, BuyerPurchasedGig or BuyerCancelledGig.
type BuyerMessage interface {
	buyerMessage()
}

// BuyerAuth creates or refreshes a buyer profile after sign-up.
type BuyerAuth struct {
	Buyer model.Buyer
}

// BuyerPurchasedGig adds a gig to the buyer purchase list.
type BuyerPurchasedGig struct {
	BuyerID string
	GigID   string
}

// BuyerCancelledGig removes a gig from the buyer purchase list.
type BuyerCancelledGig struct {
	BuyerID string
	GigID   string
}

func (BuyerAuth) buyerMessage()         {}
func (BuyerPurchasedGig) buyerMessage() {}
func (BuyerCancelledGig) buyerMessage() {}

type buyerWire struct {
	Type           string    `json:"type"`
	ID             string    `json:"id"`
	BuyerID        string    `json:"buyerId"`
	PurchasedGigs  string    `json:"purchasedGigs"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profilePicture"`
	Country        string    `json:"country"`
	CreatedAt      time.Time `json:"createdAt"`
}

// DecodeBuyer parses a message from the buyer queue.
func DecodeBuyer(body []byte) (BuyerMessage, error) {
	var w buyerWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformed("buyer message: %v", err)
	}

	switch w.Type {
	case "auth":
		id := w.ID
		if id == "" {
			id = w.Username
		}
		if id == "" {
			return nil, malformed("buyer auth without id or username")
		}
		return BuyerAuth{Buyer: model.Buyer{
			ID:             id,
			Username:       w.Username,
			Email:          w.Email,
			ProfilePicture: w.ProfilePicture,
			Country:        w.Country,
			CreatedAt:      w.CreatedAt,
		}}, nil
	case "purchased-gigs", "cancelled-gigs":
		if w.BuyerID == "" || w.PurchasedGigs == "" {
			return nil, malformed("buyer %s without buyer or gig id", w.Type)
		}
		if w.Type == "purchased-gigs" {
			return BuyerPurchasedGig{BuyerID: w.BuyerID, GigID: w.PurchasedGigs}, nil
		}
		return BuyerCancelledGig{BuyerID: w.BuyerID, GigID: w.PurchasedGigs}, nil
	default:
		return nil, unknownType("buyer", w.Type)
	}
}

// SellerMessage is one of SellerCreateOrder, SellerApproveOrder, SellerGigCount or SellerCancelOrder.
type SellerMessage interface {
	sellerMessage()
}

// SellerCreateOrder carries the seller's absolute number of ongoing jobs.
type SellerCreateOrder struct {
	SellerID    string
	OngoingJobs int
}

// SellerApproveOrder carries absolute totals after an approval.
type SellerApproveOrder struct {
	SellerID       string
	OngoingJobs    int
	CompletedJobs  int
	TotalEarnings  float64
	RecentDelivery *time.Time
}

// SellerGigCount carries the seller's absolute gig count.
type SellerGigCount struct {
	SellerID string
	Count    int
}

// SellerCancelOrder counts one cancelled job, once per order.
type SellerCancelOrder struct {
	SellerID string
	OrderID  string
}

func (SellerCreateOrder) sellerMessage()  {}
func (SellerApproveOrder) sellerMessage() {}
func (SellerGigCount) sellerMessage()     {}
func (SellerCancelOrder) sellerMessage()  {}

type sellerWire struct {
	Type           string     `json:"type"`
	SellerID       string     `json:"sellerId"`
	GigSellerID    string     `json:"gigSellerId"`
	OrderID        string     `json:"orderId"`
	OngoingJobs    *int       `json:"ongoingJobs"`
	CompletedJobs  *int       `json:"completedJobs"`
	TotalEarnings  *float64   `json:"totalEarnings"`
	RecentDelivery *time.Time `json:"recentDelivery"`
	Count          *int       `json:"count"`
}

// DecodeSeller parses a message from the seller queue.
func DecodeSeller(body []byte) (SellerMessage, error) {
	var w sellerWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, malformed("seller message: %v", err)
	}

	switch w.Type {
	case "create-order":
		if w.SellerID == "" || w.OngoingJobs == nil {
			return nil, malformed("create-order requires sellerId and ongoingJobs")
		}
		return SellerCreateOrder{SellerID: w.SellerID, OngoingJobs: *w.OngoingJobs}, nil
	case "approve-order":
		if w.SellerID == "" || w.OngoingJobs == nil || w.CompletedJobs == nil || w.TotalEarnings == nil {
			return nil, malformed("approve-order requires sellerId, ongoingJobs, completedJobs and totalEarnings")
		}
		return SellerApproveOrder{
			SellerID:       w.SellerID,
			OngoingJobs:    *w.OngoingJobs,
			CompletedJobs:  *w.CompletedJobs,
			TotalEarnings:  *w.TotalEarnings,
			RecentDelivery: w.RecentDelivery,
		}, nil
	case "update-gig-count":
		if w.GigSellerID == "" || w.Count == nil {
			return nil, malformed("update-gig-count requires gigSellerId and count")
		}
		return SellerGigCount{SellerID: w.GigSellerID, Count: *w.Count}, nil
	case "cancel-order":
		if w.SellerID == "" || w.OrderID == "" {
			return nil, malformed("cancel-order requires sellerId and orderId")
		}
		return SellerCancelOrder{SellerID: w.SellerID, OrderID: w.OrderID}, nil
	default:
		return nil, unknownType("seller", w.Type)
	}
}

// DecodeReview parses a review broadcast.
func DecodeReview(body []byte) (model.Review, error) {
	var r model.Review
	if err := json.Unmarshal(body, &r); err != nil {
		return r, malformed("review: %v", err)
	}
	if r.ID == "" || r.SellerID == "" {
		return r, malformed("review without id or seller")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return r, malformed("review %s rating %d out of range", r.ID, r.Rating)
	}
	return r, nil
}
