package ratelimit

import (
	"context"

	"github.com/adsboard/adsboard/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// NewClient returns nil when no redis address is configured; the limiter
// degrades to a no-op.
func NewClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewClient),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewRefreshLimiter),
)
