package scheduler

import (
	"context"

	"github.com/adsboard/adsboard/internal/config"
	"go.uber.org/fx"
)

// ProvideConfig maps the application refresh settings onto the scheduler.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:     cfg.Refresh.ScanInterval,
		LookaheadWindow: cfg.Refresh.LookaheadWindow,
		AuditRetention:  cfg.AuditRetention,
	}.withDefaults()
}

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
