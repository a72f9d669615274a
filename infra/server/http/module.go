package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/xj1core/cloud-bridge/config"
	"go.uber.org/fx"
)

func NewFromConfig(cfg *config.Config, handler http.Handler, logger *slog.Logger) *Server {
	return NewServer(cfg.Web.Host, cfg.Web.Port, handler, logger)
}

var Module = fx.Module("http-server",
	fx.Provide(NewFromConfig),

	fx.Invoke(func(lc fx.Lifecycle, s *Server, shutdowner fx.Shutdowner, logger *slog.Logger) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				ln, err := s.Listen()
				if err != nil {
					return err
				}
				go func() {
					defer close(done)
					if err := s.Serve(ctx, ln); err != nil {
						logger.Error("HTTP_SERVER_FAILED", "err", err)
						_ = shutdowner.Shutdown(fx.ExitCode(1))
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
				return nil
			},
		})
	}),
)
