package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"go.uber.org/fx"
)

// Run builds the service graph, starts it and blocks until a termination
// signal arrives or a component requests shutdown.
func Run(service fx.Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fxApp := fx.New(
		fx.Provide(func() context.Context { return ctx }),
		service,
	)
	return run(ctx, fxApp)
}

type runnable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Wait() <-chan fx.ShutdownSignal
}

func run(ctx context.Context, fxApp runnable) error {
	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	exitCode := 0
	select {
	case <-ctx.Done():
	case sig := <-fxApp.Wait():
		exitCode = sig.ExitCode
	}

	if err := fxApp.Stop(context.Background()); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("application exited with code %d", exitCode)
	}
	return nil
}
