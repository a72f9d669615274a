package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xj1core/cloud-bridge/internal/adapter/metrics"
	"github.com/xj1core/cloud-bridge/internal/handler/ws"
)

// NewRoutes assembles the full HTTP surface.
func NewRoutes(h *Handler, wsh *ws.WSHandler, httpMetrics *metrics.HTTPMetrics, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(logger),
		middleware.Recoverer,
		httpMetrics.Middleware,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/messages", h.Messages)
		r.Get("/config", h.Config)
		r.Post("/send", h.Send)

		r.Route("/mqtt", func(r chi.Router) {
			r.Post("/publish", h.Publish)
			r.Post("/reconnect", h.Reconnect)
		})
	})

	r.Method(http.MethodGet, "/ws", wsh)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	return r
}

// [LOGGING_MIDDLEWARE]
// Structured logging with latency and request id.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("HTTP_REQUEST_HANDLED",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote", r.RemoteAddr,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
