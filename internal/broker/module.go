package broker

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
	"github.com/polkiloo/jobber/internal/metrics"
)

// Module provides the broker client and connects it on start.
var Module = fx.Options(
	fx.Provide(newClient),
	fx.Invoke(registerLifecycle),
)

// Declare contributes topology to the broker start hook.
func Declare(topology ...Topology) fx.Option {
	return fx.Provide(fx.Annotate(
		func() []Topology { return topology },
		fx.ResultTags(`group:"broker.topology,flatten"`),
	))
}

type clientParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func newClient(p clientParams) *Client {
	return NewClient(p.Config.RabbitMQURL, Options{
		MaxRetries:    p.Config.BrokerMaxRetries,
		RetryInterval: p.Config.BrokerRetryInterval,
		Prefetch:      p.Config.BrokerPrefetch,
	}, p.Logger, p.Metrics)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Client     *Client
	Topology   []Topology `group:"broker.topology"`
}

func registerLifecycle(p lifecycleParams) {
	p.Client.OnFatal(func(err error) {
		p.Logger.Error("broker unavailable, shutting down", slog.Any("error", err))
		_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Client.Connect(ctx); err != nil {
				return err
			}
			for _, t := range p.Topology {
				if err := p.Client.DeclareTopology(t); err != nil {
					return fmt.Errorf("declare topology: %w", err)
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return p.Client.Close()
		},
	})
}
