package auth

import (
	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
)

// Module provides gateway token verification via fx.
var Module = fx.Options(
	fx.Provide(newTokenStrategy),
)

type strategyParams struct {
	fx.In

	Config *config.Config
}

func newTokenStrategy(p strategyParams) Strategy {
	return NewHMACStrategy(p.Config.GatewaySecret, Options{})
}
