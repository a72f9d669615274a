package cmd

import (
	"log/slog"

	"github.com/xj1core/cloud-bridge/config"
	httpsrv "github.com/xj1core/cloud-bridge/infra/server/http"
	"github.com/xj1core/cloud-bridge/internal/adapter/metrics"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"github.com/xj1core/cloud-bridge/internal/adapter/pubsub"
	"github.com/xj1core/cloud-bridge/internal/domain/registry"
	"github.com/xj1core/cloud-bridge/internal/handler/broker"
	"github.com/xj1core/cloud-bridge/internal/handler/rest"
	"github.com/xj1core/cloud-bridge/internal/handler/ws"
	"github.com/xj1core/cloud-bridge/internal/service"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideClock,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Invoke(func(level *slog.LevelVar, logger *slog.Logger) {
			cfg.WatchLogLevel(level, logger)
		}),
		service.Decorators,

		metrics.Module,
		pubsub.Module,
		mqtt.Module,
		service.Module,
		registry.Module,
		ws.Module,
		rest.Module,
		broker.Module,
		httpsrv.Module,
	)
}
