package broker

import (
	"context"
	"encoding/json"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
)

// DomainHandler defines the functional signature for business logic.
type DomainHandler[T any] func(ctx context.Context, payload *T) error

// [INFRASTRUCTURE_BRIDGE]
// Bind connects Watermill to Domain logic, handling Panic Recovery and Decoding.
//
// Every outcome acks: delivery is at-most-once and a nack on the in-process bus
// would only redeliver the same message to the same handler.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		// [PANIC_RECOVERY]
		// Safely handle runtime panics to keep the consumer alive.
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("PANIC_RECOVERED",
					"err", r,
					"stack", string(debug.Stack()),
					"msg_id", msg.UUID)
			}
		}()

		// [DECODING]
		payload := new(T)
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			h.logger.Error("DECODE_FAILED", "err", err, "msg_id", msg.UUID)
			return nil // ACK: Poison Pill protection.
		}

		// [EXECUTION]
		if err := fn(msg.Context(), payload); err != nil {
			h.logger.Error("INBOUND_HANDLER_FAILED", "err", err, "msg_id", msg.UUID,
				"trace_id", TraceIDFromContext(msg.Context()))
		}
		return nil
	}
}
