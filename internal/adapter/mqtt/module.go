package mqtt

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/config"
	"go.uber.org/fx"
)

// EndpointFromConfig extracts the dial target.
func EndpointFromConfig(cfg *config.Config) Endpoint {
	return Endpoint{
		Host:             cfg.MQTT.BrokerHost,
		Port:             cfg.MQTT.BrokerPort,
		KeepaliveSeconds: cfg.MQTT.Keepalive,
	}
}

func NewFromConfig(cfg *config.Config, logger *slog.Logger, clock clockwork.Clock, sink InboundSink) *Connector {
	return NewConnector(logger, sink,
		WithClientID(cfg.MQTT.ClientID),
		WithCredentials(cfg.MQTT.Username, cfg.MQTT.Password),
		WithQoS(byte(cfg.MQTT.QoS)),
		WithPublishTimeout(cfg.MQTT.PublishTimeout),
		WithMailboxSize(cfg.MQTT.MailboxSize),
		WithBreaker(uint32(cfg.MQTT.BreakerTrips), cfg.MQTT.BreakerCooloff),
		WithClock(clock),
	)
}

var Module = fx.Module("mqtt",
	fx.Provide(NewFromConfig),

	// [STATE_FANOUT] Everyone who provided into the broker_state group hears about transitions.
	fx.Invoke(fx.Annotate(
		func(c *Connector, listeners []StateListener) {
			for _, l := range listeners {
				c.AddStateListener(l)
			}
		},
		fx.ParamTags(``, `group:"broker_state"`),
	)),

	// [SUPERVISOR] Optional fixed-interval re-dial, off unless configured.
	fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, c *Connector, clock clockwork.Clock, logger *slog.Logger) {
		if cfg.MQTT.ReconnectInterval <= 0 {
			return
		}
		sup := NewSupervisor(c, EndpointFromConfig(cfg), cfg.MQTT.ReconnectInterval, cfg.MQTT.ConnectTimeout, clock, logger)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					sup.Run(ctx)
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
