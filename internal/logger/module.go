package logger

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
)

// ServiceName identifies the running binary in log records.
type ServiceName string

// Module wires slog logger for dependency injection.
var Module = fx.Provide(func(cfg *config.Config, name ServiceName) *slog.Logger {
	return New(string(name), cfg.LogLevel)
})
