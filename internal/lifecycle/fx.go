package lifecycle

import (
	"context"
	"time"

	"github.com/entitlehq/entitled/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lifecycle.consumer",
	fx.Provide(NewConsumer),
	fx.Invoke(runConsumer),
)

func runConsumer(lc fx.Lifecycle, consumer *Consumer, cfg config.Config) {
	interval := time.Duration(cfg.EventPollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					if err := consumer.ProcessPending(context.Background()); err != nil {
						consumer.log.Error("lifecycle poll failed", zap.Error(err))
					}
					select {
					case <-ticker.C:
					case <-stop:
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			return nil
		},
	})
}
