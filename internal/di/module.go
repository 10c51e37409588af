package di

import (
	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/adapter/escrow"
	"github.com/polkiloo/jobber/internal/adapter/lock"
	"github.com/polkiloo/jobber/internal/adapter/mail"
	"github.com/polkiloo/jobber/internal/app"
	"github.com/polkiloo/jobber/internal/broker"
	"github.com/polkiloo/jobber/internal/config"
	"github.com/polkiloo/jobber/internal/consumer"
	"github.com/polkiloo/jobber/internal/logger"
	"github.com/polkiloo/jobber/internal/metrics"
	"github.com/polkiloo/jobber/internal/notification"
	"github.com/polkiloo/jobber/internal/pkg/auth"
	"github.com/polkiloo/jobber/internal/server/http/handlers"
	"github.com/polkiloo/jobber/internal/server/http/router"
	"github.com/polkiloo/jobber/internal/storage/postgres"
	"github.com/polkiloo/jobber/internal/usecase"
)

// Service names used in logs and health responses.
const (
	OrderService        = "order"
	NotificationService = "notification"
	UsersService        = "users"
)

func shared(service string) []fx.Option {
	return []fx.Option{
		fx.Supply(logger.ServiceName(service)),
		config.Module,
		logger.Module,
		metrics.Module,
		auth.Module,
		postgres.Module,
		broker.Module,
		usecase.Module,
	}
}

// Orders composes the order service: HTTP API, escrow client, broker
// publisher and reconciliation sweep.
func Orders(opts ...fx.Option) fx.Option {
	modules := append(shared(OrderService),
		escrow.Module,
		lock.Module,
		broker.Declare(broker.OrdersTopology()...),
		fx.Provide(
			func(c *broker.Client) usecase.Publisher { return c },
			func(u *usecase.OrderOrchestrator) handlers.OrderService { return u },
		),
		router.Orders,
		app.Module,
		app.Reconciliation,
	)
	return fx.Options(append(modules, opts...)...)
}

// Notifications composes the notification service: order event and email
// consumers, notification API and live stream.
func Notifications(opts ...fx.Option) fx.Option {
	modules := append(shared(NotificationService),
		mail.Module,
		notification.Module,
		broker.Declare(broker.NotificationsTopology()...),
		fx.Provide(
			func(h *notification.Hub) usecase.LivePusher { return h },
			func(h *notification.Hub) handlers.NotificationStream { return h },
			func(s *usecase.NotificationService) handlers.NotificationService { return s },
		),
		consumer.Notifications,
		consumer.Module,
		router.Notifications,
		app.Module,
	)
	return fx.Options(append(modules, opts...)...)
}

// Users composes the users service: buyer, seller, review and order event
// consumers plus the stats API.
func Users(opts ...fx.Option) fx.Option {
	modules := append(shared(UsersService),
		broker.Declare(broker.UsersTopology()...),
		fx.Provide(
			func(s *usecase.UsersService) handlers.UsersService { return s },
		),
		consumer.Users,
		consumer.Module,
		router.Users,
		app.Module,
	)
	return fx.Options(append(modules, opts...)...)
}
