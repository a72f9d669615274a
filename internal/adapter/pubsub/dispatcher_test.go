package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
	"github.com/xj1core/cloud-bridge/internal/service/dto"
)

func TestInboundDispatcher_DeliversInOrder(t *testing.T) {
	ch := NewGoChannel(watermill.NopLogger{})
	t.Cleanup(func() { _ = ch.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := ch.Subscribe(ctx, TopicBrokerInbound)
	require.NoError(t, err)

	d := NewInboundDispatcher(ch)
	const n = 20

	errCh := make(chan error, 1)
	go func() {
		for i := range n {
			rec := model.Record{
				Timestamp: time.Now(),
				Topic:     "xj1core/data/receive",
				Content:   fmt.Sprintf("m-%02d", i),
				Direction: model.DirectionReceived,
			}
			if err := d.Deliver(context.Background(), rec); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- nil
	}()

	for i := range n {
		select {
		case msg := <-msgs:
			var in dto.InboundV1
			require.NoError(t, json.Unmarshal(msg.Payload, &in))
			assert.Equal(t, fmt.Sprintf("m-%02d", i), in.Message)
			assert.Equal(t, "xj1core/data/receive", msg.Metadata.Get(MetadataBrokerTopic))
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatalf("message %d not delivered", i)
		}
	}

	require.NoError(t, <-errCh)
}
