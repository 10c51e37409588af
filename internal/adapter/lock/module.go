package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/polkiloo/jobber/internal/config"
)

// Module provides the order locker, backed by Redis when REDIS_ADDR is set.
var Module = fx.Provide(newLocker)

type lockerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

func newLocker(p lockerParams) Locker {
	if p.Config.RedisAddr == "" {
		p.Logger.Info("redis not configured, using in-process order locks")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{Addr: p.Config.RedisAddr})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client, lockTTL(p.Config), p.Logger)
}

// lockTTL outlives the longest locked section: a reconciliation that reads the
// escrow record, replays a gateway-backed step and falls back to compensation.
func lockTTL(cfg *config.Config) time.Duration {
	return 2*cfg.EscrowTimeout + cfg.CompensationTimeout + 5*time.Second
}
