package event

import "github.com/xj1core/cloud-bridge/internal/domain/model"

// StatusPayload mirrors the broker link for the web clients.
// MessageCount is only populated when a client explicitly asks for status.
type StatusPayload struct {
	MQTTConnected bool   `json:"mqtt_connected"`
	BrokerHost    string `json:"broker_host"`
	BrokerPort    int    `json:"broker_port"`
	MessageCount  *int   `json:"message_count,omitempty"`
}

func NewStatusPayload(st model.BrokerStatus) *StatusPayload {
	return &StatusPayload{
		MQTTConnected: st.Connected(),
		BrokerHost:    st.Host,
		BrokerPort:    st.Port,
	}
}

// WithCount attaches the history length.
func (p *StatusPayload) WithCount(n int) *StatusPayload {
	p.MessageCount = &n
	return p
}

// SendResultPayload answers a client send_message.
type SendResultPayload struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendMessagePayload is the body of a client send_message.
type SendMessagePayload struct {
	Message string `json:"message"`
}
