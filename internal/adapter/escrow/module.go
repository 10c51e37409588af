package escrow

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
	"github.com/polkiloo/jobber/internal/metrics"
)

// Module exposes the escrow client implementation to fx graph.
var Module = fx.Provide(newClient)

type clientParams struct {
	fx.In

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func newClient(p clientParams) (Client, error) {
	return NewHTTPClient(p.Config.EscrowBaseURL, p.Config.EscrowToken, p.Config.EscrowTimeout, p.Logger, p.Metrics)
}
