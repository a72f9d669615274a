package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/config"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"github.com/xj1core/cloud-bridge/internal/domain/history"
	"github.com/xj1core/cloud-bridge/internal/domain/registry"
	"go.uber.org/fx"
)

func NewHistoryFromConfig(cfg *config.Config) (*history.Buffer, error) {
	return history.New(cfg.History.Capacity)
}

func NewRouterFromConfig(cfg *config.Config, pub Publisher, bc Broadcaster, buf *history.Buffer, clock clockwork.Clock) *Router {
	return NewRouter(pub, bc, buf, cfg.MQTT.PublishTopic, clock)
}

// Decorators must be installed at the application root: an fx.Decorate inside a
// module would only be seen by that module's own consumers.
var Decorators = fx.Options(
	// [DECORATION_LAYER] Intercept Ingester to add cross-cutting concerns
	fx.Decorate(func(orig Ingester, logger *slog.Logger, recorder IngestRecorder) Ingester {
		return NewRouterMiddleware(orig, logger, recorder)
	}),
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewHistoryFromConfig,
		func(b *history.Buffer) history.Reader { return b },

		// Egress ports
		func(c *mqtt.Connector) Publisher { return c },
		func(h *registry.Hub) Broadcaster { return h },

		fx.Annotate(
			NewRouterFromConfig,
			fx.As(new(Ingester)),
		),
	),


	// [PERIODIC_SEND] off unless message.periodic_enabled
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, ing Ingester, c *mqtt.Connector, h *registry.Hub, clock clockwork.Clock, logger *slog.Logger) {
		if !cfg.Message.PeriodicEnabled {
			return
		}
		sender := NewPeriodicSender(ing, c, h, cfg.Message.DefaultMessage,
			time.Duration(cfg.Message.SendInterval)*time.Second, clock, logger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					sender.Run(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
				}
				return nil
			},
		})
	}),
)
