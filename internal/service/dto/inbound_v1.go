package dto

import (
	"time"

	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// [BUS_V1] PAYLOAD CARRIED FROM THE BROKER CONNECTOR TO THE INBOUND HANDLER
type InboundV1 struct {
	Topic      string `json:"topic"`
	Message    string `json:"message"`
	ReceivedAt string `json:"received_at"`
}

func NewInboundV1(rec model.Record) *InboundV1 {
	return &InboundV1{
		Topic:      rec.Topic,
		Message:    rec.Content,
		ReceivedAt: rec.Timestamp.Format(time.RFC3339Nano),
	}
}

// ToCandidate restores the provisional record. The connector timestamp is kept so the
// history reflects broker arrival rather than bus latency.
func (d *InboundV1) ToCandidate() model.Candidate {
	ts, err := time.Parse(time.RFC3339Nano, d.ReceivedAt)
	if err != nil {
		ts = time.Time{}
	}
	return model.Candidate{
		Timestamp: ts,
		Topic:     d.Topic,
		Content:   d.Message,
	}
}
