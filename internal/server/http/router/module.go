package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/logger"
	"github.com/polkiloo/jobber/internal/metrics"
	"github.com/polkiloo/jobber/internal/pkg/auth"
	"github.com/polkiloo/jobber/internal/server/http/handlers"
)

// Orders registers the order service router.
var Orders = fx.Provide(func(p baseParams, orders handlers.OrderService) *gin.Engine {
	return SetupOrders(p.base(), orders)
})

// Notifications registers the notification service router.
var Notifications = fx.Provide(func(p baseParams, notifications handlers.NotificationService, stream handlers.NotificationStream) *gin.Engine {
	return SetupNotifications(p.base(), notifications, stream)
})

// Users registers the users service router.
var Users = fx.Provide(func(p baseParams, users handlers.UsersService) *gin.Engine {
	return SetupUsers(p.base(), users)
})

type baseParams struct {
	fx.In

	Service logger.ServiceName
	Tokens  auth.Strategy
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (p baseParams) base() Base {
	return Base{Service: string(p.Service), Tokens: p.Tokens, Metrics: p.Metrics, Logger: p.Logger}
}
