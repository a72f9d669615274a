package broker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/xj1core/cloud-bridge/internal/adapter/pubsub"
	"github.com/xj1core/cloud-bridge/internal/service"
)

const (
	HandlerInbound = "ON_BROKER_INBOUND"

	routerCloseTimeout = 10 * time.Second
	handlerTimeout     = 30 * time.Second
)

type MessageHandler struct {
	ingester service.Ingester
	logger   *slog.Logger
}

func NewMessageHandler(ingester service.Ingester, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{ingester: ingester, logger: logger}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: routerCloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber) {
	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{HandlerInbound, pubsub.TopicBrokerInbound, Bind(h, h.OnInboundV1)},
	}

	for _, c := range configs {
		router.AddConsumerHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			middleware.Timeout(handlerTimeout),
		)
	}

	h.logger.Info("INBOUND_PIPELINE_READY", "topic", pubsub.TopicBrokerInbound)
}
