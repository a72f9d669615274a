package broker

import (
	"context"

	"github.com/xj1core/cloud-bridge/internal/domain/model"
	"github.com/xj1core/cloud-bridge/internal/service/dto"
)

// [ON_BROKER_MESSAGE]
// Hands a message received from the broker to the router: history, then fan-out.
func (h *MessageHandler) OnInboundV1(ctx context.Context, raw *dto.InboundV1) error {
	_, err := h.ingester.Ingest(ctx, raw.ToCandidate(), model.OriginBroker)
	return err
}
