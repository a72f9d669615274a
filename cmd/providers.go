package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/config"
)

// ProvideLogger builds the process logger. The returned LevelVar lets the
// config watcher change verbosity without rebuilding handlers.
func ProvideLogger(cfg *config.Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(config.ParseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("service", ServiceName, "namespace", ServiceNamespace, "version", version)
	slog.SetDefault(logger)
	return logger, level
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}

func ProvideClock() clockwork.Clock {
	return clockwork.NewRealClock()
}
