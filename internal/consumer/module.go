package consumer

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/broker"
)

// Module runs the bound consumers between broker connect and broker close.
var Module = fx.Options(
	fx.Provide(newRunner),
	fx.Invoke(registerLifecycle),
)

// Notifications contributes the notification service bindings.
var Notifications = fx.Provide(fx.Annotate(
	NotificationBindings,
	fx.ResultTags(`group:"consumer.bindings,flatten"`),
))

// Users contributes the users service bindings.
var Users = fx.Provide(fx.Annotate(
	UsersBindings,
	fx.ResultTags(`group:"consumer.bindings,flatten"`),
))

type runnerParams struct {
	fx.In

	Client   *broker.Client
	Logger   *slog.Logger
	Bindings []Binding `group:"consumer.bindings"`
}

func newRunner(p runnerParams) *Runner {
	return NewRunner(p.Client, p.Bindings, p.Logger)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Runner    *Runner
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Runner.Start(context.WithoutCancel(ctx))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return p.Runner.Stop()
		},
	})
}
