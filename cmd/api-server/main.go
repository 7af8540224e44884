// Command api-server serves the volty storefront and admin API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/dernounimk/volty/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		lg.Info("Config loaded",
			zap.String("events_driver", cfg.Events.Driver),
			zap.String("rate_limit_store", cfg.RateLimit.Store),
			zap.Duration("cart_ttl", cfg.Cart.TTL),
		)
		return appkg.Run(ctx, lg, m, cfg)
	})
}
