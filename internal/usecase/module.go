package usecase

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/adapter/escrow"
	"github.com/polkiloo/jobber/internal/adapter/lock"
	"github.com/polkiloo/jobber/internal/config"
	"github.com/polkiloo/jobber/internal/domain/repository"
	"github.com/polkiloo/jobber/internal/metrics"
)

// Module provides core business use cases to the fx container.
var Module = fx.Provide(
	newOrderOrchestrator,
	NewNotificationService,
	NewUsersService,
)

type orchestratorParams struct {
	fx.In

	Orders    repository.OrderRepository
	Gateway   escrow.Client
	Publisher Publisher
	Locker    lock.Locker
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Config    *config.Config
}

func newOrderOrchestrator(p orchestratorParams) *OrderOrchestrator {
	u := NewOrderOrchestrator(p.Orders, p.Gateway, p.Publisher, p.Locker, p.Metrics, p.Logger)
	if p.Config.CompensationTimeout > 0 {
		u.compensationTimeout = p.Config.CompensationTimeout
	}
	return u
}
