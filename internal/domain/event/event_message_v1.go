package event

import (
	"time"

	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// NewMessageFrame encodes a single record for live fan-out.
func NewMessageFrame(at time.Time, r model.Record) ([]byte, error) {
	return Encode(KindNewMessage, at, r)
}

// HistoryFrame encodes the replay sent to a freshly attached session.
func HistoryFrame(at time.Time, rs []model.Record) ([]byte, error) {
	if rs == nil {
		rs = []model.Record{}
	}
	return Encode(KindMessageHistory, at, rs)
}
