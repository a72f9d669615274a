package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/xj1core/cloud-bridge/internal/adapter/mqtt"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
	"github.com/xj1core/cloud-bridge/internal/service/dto"
)

// TopicBrokerInbound carries provisional records from the connector to the inbound handler.
const TopicBrokerInbound = "bridge.broker.inbound.v1"

// MetadataBrokerTopic holds the MQTT topic the record arrived on.
const MetadataBrokerTopic = "mqtt_topic"

// Interface guard
var _ mqtt.InboundSink = (*InboundDispatcher)(nil)

// InboundDispatcher is the connector's sink: it moves each record onto the bus.
type InboundDispatcher struct {
	publisher message.Publisher
}

func NewInboundDispatcher(pub message.Publisher) *InboundDispatcher {
	return &InboundDispatcher{
		publisher: pub,
	}
}

// Deliver blocks until the handler has acked the record, which keeps broker order intact.
func (d *InboundDispatcher) Deliver(ctx context.Context, rec model.Record) error {
	payload, err := json.Marshal(dto.NewInboundV1(rec))
	if err != nil {
		return fmt.Errorf("inbound dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataBrokerTopic, rec.Topic)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(TopicBrokerInbound, msg); err != nil {
		return fmt.Errorf("inbound dispatcher: failed to publish to topic %s: %w", TopicBrokerInbound, err)
	}

	return nil
}
