package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/polkiloo/jobber/internal/metrics"
	"github.com/polkiloo/jobber/internal/server/http/handlers"
	"github.com/polkiloo/jobber/internal/server/http/middleware"
)

// Base carries what every service router needs.
type Base struct {
	Service string
	Tokens  middleware.TokenParser
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// newEngine configures the shared middleware and the unauthenticated
// /health and /metrics routes, and returns the gateway-protected API group.
func newEngine(base Base) (*gin.Engine, *gin.RouterGroup) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(base.Logger))
	engine.Use(middleware.DecompressRequest())
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/stream$`})))

	engine.GET("/health", handlers.Health(base.Service))
	engine.GET("/metrics", gin.WrapH(base.Metrics.Handler()))

	api := engine.Group("/api/v1")
	api.Use(middleware.GatewayRequired(base.Tokens))
	return engine, api
}

// SetupOrders builds the order service router.
func SetupOrders(base Base, orders handlers.OrderService) *gin.Engine {
	engine, api := newEngine(base)
	h := handlers.NewOrderHandler(orders)

	order := api.Group("/order")
	order.POST("", h.CreateStandard)
	order.POST("/crypto", h.CreateCrypto)
	order.PUT("/crypto/:orderId/confirm-payment", h.ConfirmPayment)
	order.PUT("/:orderId/payment", h.ConfirmStandardPayment)
	order.PUT("/:orderId/deliver", h.Deliver)
	order.PUT("/:orderId/complete", h.Complete)
	order.PUT("/:orderId/cancel", h.Cancel)
	order.PUT("/:orderId/dispute", h.OpenDispute)
	order.PUT("/:orderId/resolve-dispute", h.ResolveDispute)
	order.GET("/:orderId", h.Get)
	order.GET("/buyer/:buyerId", h.ListByBuyer)
	order.GET("/seller/:sellerId", h.ListBySeller)

	return engine
}

// SetupNotifications builds the notification service router.
func SetupNotifications(base Base, notifications handlers.NotificationService, stream handlers.NotificationStream) *gin.Engine {
	engine, api := newEngine(base)
	h := handlers.NewNotificationHandler(notifications, stream)

	group := api.Group("/notifications")
	group.GET("/:userTo", h.List)
	group.GET("/:userTo/stream", h.Stream)
	group.PUT("/mark-as-read", h.MarkAsRead)

	return engine
}

// SetupUsers builds the users service router.
func SetupUsers(base Base, users handlers.UsersService) *gin.Engine {
	engine, api := newEngine(base)
	h := handlers.NewUsersHandler(users)

	api.GET("/seller/:sellerId", h.Seller)
	api.GET("/buyer/:buyerId", h.Buyer)

	return engine
}
