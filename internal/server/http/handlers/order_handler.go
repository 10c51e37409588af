package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/server/http/dto"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateStandard handles POST /api/v1/order.
func (h *OrderHandler) CreateStandard(c *gin.Context) {
	h.create(c, model.PaymentTypeStandard)
}

// CreateCrypto handles POST /api/v1/order/crypto.
func (h *OrderHandler) CreateCrypto(c *gin.Context) {
	h.create(c, model.PaymentTypeCrypto)
}

func (h *OrderHandler) create(c *gin.Context, paymentType model.PaymentType) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orders.Create(c.Request.Context(), toOrder(req, paymentType))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.OrderEnvelope{Message: "Order created successfully.", Order: toOrderResponse(*order)})
}

// ConfirmPayment handles PUT /api/v1/order/crypto/:orderId/confirm-payment.
func (h *OrderHandler) ConfirmPayment(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.orders.ConfirmPayment(c.Request.Context(), c.Param("orderId"), req.TransactionHash, req.BlockNumber)
	h.respond(c, "Payment confirmed.", order, err)
}

// ConfirmStandardPayment handles PUT /api/v1/order/:orderId/payment.
func (h *OrderHandler) ConfirmStandardPayment(c *gin.Context) {
	var req dto.StandardPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.orders.ConfirmStandardPayment(c.Request.Context(), c.Param("orderId"), req.PaymentReference)
	h.respond(c, "Payment confirmed.", order, err)
}

// Deliver handles PUT /api/v1/order/:orderId/deliver.
func (h *OrderHandler) Deliver(c *gin.Context) {
	var req dto.DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.orders.Deliver(c.Request.Context(), c.Param("orderId"), req.DeliveredWork)
	h.respond(c, "Order delivered successfully.", order, err)
}

// Complete handles PUT /api/v1/order/:orderId/complete.
func (h *OrderHandler) Complete(c *gin.Context) {
	order, err := h.orders.Complete(c.Request.Context(), c.Param("orderId"))
	h.respond(c, "Order completed successfully.", order, err)
}

// Cancel handles PUT /api/v1/order/:orderId/cancel.
func (h *OrderHandler) Cancel(c *gin.Context) {
	var req dto.ReasonRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	order, err := h.orders.Cancel(c.Request.Context(), c.Param("orderId"), req.Reason)
	h.respond(c, "Order cancelled successfully.", order, err)
}

// OpenDispute handles PUT /api/v1/order/:orderId/dispute.
func (h *OrderHandler) OpenDispute(c *gin.Context) {
	var req dto.ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.orders.OpenDispute(c.Request.Context(), c.Param("orderId"), req.Reason)
	h.respond(c, "Dispute opened.", order, err)
}

// ResolveDispute handles PUT /api/v1/order/:orderId/resolve-dispute.
func (h *OrderHandler) ResolveDispute(c *gin.Context) {
	var req dto.ResolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	order, err := h.orders.ResolveDispute(c.Request.Context(), c.Param("orderId"), req.Outcome)
	h.respond(c, "Dispute resolved.", order, err)
}

// Get handles GET /api/v1/order/:orderId.
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.Get(c.Request.Context(), c.Param("orderId"))
	h.respond(c, "Order.", order, err)
}

// ListByBuyer handles GET /api/v1/order/buyer/:buyerId.
func (h *OrderHandler) ListByBuyer(c *gin.Context) {
	orders, err := h.orders.ListByBuyer(c.Request.Context(), c.Param("buyerId"))
	h.respondList(c, "Buyer orders.", orders, err)
}

// ListBySeller handles GET /api/v1/order/seller/:sellerId.
func (h *OrderHandler) ListBySeller(c *gin.Context) {
	orders, err := h.orders.ListBySeller(c.Request.Context(), c.Param("sellerId"))
	h.respondList(c, "Seller orders.", orders, err)
}

func (h *OrderHandler) respond(c *gin.Context, message string, order *model.Order, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderEnvelope{Message: message, Order: toOrderResponse(*order)})
}

func (h *OrderHandler) respondList(c *gin.Context, message string, orders []model.Order, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	response := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, dto.OrdersEnvelope{Message: message, Orders: response})
}

func toOrder(req dto.CreateOrderRequest, paymentType model.PaymentType) model.Order {
	order := model.Order{
		ID:             req.OrderID,
		Buyer:          model.Party(req.Buyer),
		Seller:         model.Party(req.Seller),
		GigID:          req.GigID,
		GigTitle:       req.GigTitle,
		GigDescription: req.GigDescription,
		Price:          req.Price,
		PaymentType:    paymentType,
		Offer:          req.Offer,
	}
	if cp := req.CryptoPayment; cp != nil {
		order.CryptoPayment = &model.CryptoPayment{
			TokenAddress: cp.TokenAddress,
			TokenSymbol:  cp.TokenSymbol,
			BuyerWallet:  cp.BuyerWallet,
			SellerWallet: cp.SellerWallet,
			ChainID:      cp.ChainID,
		}
	}
	return order
}

func toOrderResponse(order model.Order) dto.OrderResponse {
	work := order.DeliveredWork
	if work == nil {
		work = []model.DeliveredWork{}
	}
	return dto.OrderResponse{
		OrderID:          order.ID,
		BuyerID:          order.Buyer.ID,
		BuyerUsername:    order.Buyer.Username,
		BuyerEmail:       order.Buyer.Email,
		BuyerImage:       order.Buyer.Picture,
		SellerID:         order.Seller.ID,
		SellerUsername:   order.Seller.Username,
		SellerEmail:      order.Seller.Email,
		SellerImage:      order.Seller.Picture,
		GigID:            order.GigID,
		GigTitle:         order.GigTitle,
		GigDescription:   order.GigDescription,
		Price:            order.Price,
		PaymentType:      string(order.PaymentType),
		Status:           string(order.Status),
		Delivered:        order.Delivered,
		Approved:         order.Approved,
		Cancelled:        order.Cancelled,
		Events:           order.Events,
		ApprovedAt:       order.ApprovedAt,
		Offer:            order.Offer,
		DeliveredWork:    work,
		CryptoPayment:    order.CryptoPayment,
		PaymentReference: order.PaymentRef,
		Orphaned:         order.Orphaned,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}
