package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/xj1core/cloud-bridge/config"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"go.uber.org/fx"
)

var Module = fx.Module("broker-handler",
	fx.Provide(
		NewMessageHandler,
		NewWatermillRouter,
	),

	fx.Invoke(Start),
)

// Start wires the inbound pipeline and brings the broker link up.
//
// [STARTUP_ORDER]
// The router must be consuming before the first subscription, otherwise the
// in-process bus has nobody to hand early messages to.
func Start(lc fx.Lifecycle, cfg *config.Config, h *MessageHandler, router *message.Router, sub message.Subscriber, connector *mqtt.Connector, logger *slog.Logger) {
	h.RegisterHandlers(router, sub)

	runCtx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				runErr <- router.Run(runCtx)
			}()

			select {
			case <-router.Running():
			case err := <-runErr:
				return fmt.Errorf("ROUTER_RUN_FAILED: %w", err)
			case <-ctx.Done():
				return ctx.Err()
			}

			if err := connector.Subscribe(cfg.MQTT.SubscribeTopic); err != nil {
				return err
			}

			err := connector.Connect(ctx, mqtt.EndpointFromConfig(cfg), cfg.MQTT.ConnectTimeout)
			if err != nil {
				if cfg.MQTT.RequireConnection {
					return fmt.Errorf("MQTT_STARTUP_CONNECT_FAILED: %w", err)
				}
				logger.Warn("MQTT_STARTUP_CONNECT_FAILED", "err", err, "broker", mqtt.EndpointFromConfig(cfg).URL())
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Stop the producer first so nothing is left blocked on the bus.
			connector.Close()

			cancel()
			if err := router.Close(); err != nil {
				logger.Error("ROUTER_CLOSE_FAILED", "err", err)
			}
			return nil
		},
	})
}
