package registry

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/config"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"github.com/xj1core/cloud-bridge/internal/domain/history"
	"go.uber.org/fx"
)

func NewHubFromConfig(cfg *config.Config, hist history.Reader, status StatusSource, clock clockwork.Clock, logger *slog.Logger) *Hub {
	return NewHub(hist, status, logger,
		WithHistoryReplay(cfg.Realtime.HistoryReplay),
		WithSendBuffer(cfg.Realtime.SendBuffer),
		WithClock(clock),
	)
}

var Module = fx.Module("registry",
	fx.Provide(
		func(c *mqtt.Connector) StatusSource { return c },

		// [CLEAN_INJECTION] Configure Hub using Functional Options
		NewHubFromConfig,
		func(h *Hub) Hubber { return h },
		fx.Annotate(
			func(h *Hub) mqtt.StateListener { return h },
			fx.ResultTags(`group:"broker_state"`),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Close every session
				return nil
			},
		})
	}),
)
