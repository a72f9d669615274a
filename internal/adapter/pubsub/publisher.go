package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"go.uber.org/fx"
)

// outputBuffer sizes the per-subscriber channel of the in-process bus.
const outputBuffer = 256

// NewGoChannel builds the in-process bus.
//
// [ORDERING]
// Publish blocks until the single subscriber acks, so at most one inbound record is
// in flight and the handler sees them in the order the connector dispatched them.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            outputBuffer,
		BlockPublishUntilSubscriberAck: true,
		PreserveContext:                true,
	}, logger)
}

var Module = fx.Module("pubsub",
	fx.Provide(
		NewGoChannel,
		func(ch *gochannel.GoChannel) message.Publisher { return ch },
		func(ch *gochannel.GoChannel) message.Subscriber { return ch },
		fx.Annotate(
			NewInboundDispatcher,
			fx.As(new(mqtt.InboundSink)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, ch *gochannel.GoChannel) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return ch.Close()
			},
		})
	}),
)
