// Package event defines the realtime channel envelope exchanged with web clients.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind names an event on the realtime channel.
type Kind string

const (
	// server -> client
	KindStatusUpdate   Kind = "status_update"
	KindMessageHistory Kind = "message_history"
	KindNewMessage     Kind = "new_message"
	KindSendResult     Kind = "send_result"

	// client -> server
	KindSendMessage   Kind = "send_message"
	KindRequestStatus Kind = "request_status"
)

// Envelope is the JSON text frame carried over the websocket.
type Envelope struct {
	Event   Kind   `json:"event"`
	ID      string `json:"id"`
	SentAt  int64  `json:"sent_at"`
	Payload any    `json:"payload"`
}

// Inbound is a client frame whose payload is decoded lazily per event kind.
type Inbound struct {
	Event   Kind            `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Encode marshals a server event into a ready-to-send frame.
// Frames are encoded once and shared by every recipient.
func Encode(kind Kind, at time.Time, payload any) ([]byte, error) {
	return json.Marshal(&Envelope{
		Event:   kind,
		ID:      uuid.NewString(),
		SentAt:  at.UnixMilli(),
		Payload: payload,
	})
}

// Decode parses a client frame.
func Decode(data []byte) (*Inbound, error) {
	in := new(Inbound)
	if err := json.Unmarshal(data, in); err != nil {
		return nil, err
	}
	return in, nil
}
