package rest

import (
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"go.uber.org/fx"
)

var Module = fx.Module("rest-handler",
	fx.Provide(
		func(c *mqtt.Connector) Link { return c },
		NewHandler,
		NewRoutes,
	),
)
