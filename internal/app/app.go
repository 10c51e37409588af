package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
	"github.com/polkiloo/jobber/internal/metrics"
	"github.com/polkiloo/jobber/internal/usecase"
	"github.com/polkiloo/jobber/internal/worker"
)

// Module wires the HTTP server and its lifecycle.
var Module = fx.Options(
	fx.Provide(newHTTPServer),
	fx.Invoke(registerLifecycle),
)

// Reconciliation runs the stale order sweep and the outbox relay next to the HTTP server.
var Reconciliation = fx.Options(
	fx.Provide(newReconciler, newRelay),
	fx.Invoke(registerReconcilerLifecycle),
)

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:    p.Config.RunAddress,
		Handler: p.Router,
	}
}

type workerParams struct {
	fx.In

	Orders  *usecase.OrderOrchestrator
	Config  *config.Config
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func newReconciler(p workerParams) *worker.Reconciler {
	return worker.NewReconciler(
		p.Orders,
		p.Config.ReconcileInterval,
		p.Config.ReconcileThreshold,
		p.Config.ReconcileBatch,
		p.Config.WorkerPoolSize,
		p.Metrics,
		p.Logger,
	)
}

func newRelay(p workerParams) *worker.Relay {
	return worker.NewRelay(p.Orders, p.Config.OutboxInterval, p.Config.OutboxBatch, p.Logger)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Config     *config.Config
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting jobber service", slog.String("addr", p.Server.Addr))
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			if err := p.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			p.Logger.Info("jobber service stopped")
			return nil
		},
	})
}

type reconcilerLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Worker    *worker.Reconciler
	Relay     *worker.Relay
}

func registerReconcilerLifecycle(p reconcilerLifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The start context ends with startup; both loops live until OnStop.
			runCtx := context.WithoutCancel(ctx)
			p.Worker.Start(runCtx)
			p.Relay.Start(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Relay.Stop()
			p.Worker.Stop()
			return nil
		},
	})
}
