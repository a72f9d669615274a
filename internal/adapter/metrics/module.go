package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"github.com/xj1core/cloud-bridge/internal/domain/history"
	"github.com/xj1core/cloud-bridge/internal/domain/registry"
	"github.com/xj1core/cloud-bridge/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("metrics",
	fx.Provide(
		NewRegistry,
		func(reg *prometheus.Registry) prometheus.Registerer { return reg },
		NewBridgeMetrics,
		NewHTTPMetrics,
		func(m *BridgeMetrics) service.IngestRecorder { return m },
		fx.Annotate(
			func(m *BridgeMetrics) mqtt.StateListener { return m },
			fx.ResultTags(`group:"broker_state"`),
		),
	),
	fx.Invoke(func(m *BridgeMetrics, c *mqtt.Connector, h *registry.Hub, hist history.Reader) {
		m.WatchSessions(h.Count)
		m.WatchSlowDrops(h.SlowDropped)
		m.WatchInboundDrops(c.Dropped)
		m.WatchHistory(hist.Len)
	}),
)
