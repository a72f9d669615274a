package model

// ConnectionState is the lifecycle of the single broker link.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// BrokerStatus is a read-only snapshot of the broker link.
type BrokerStatus struct {
	State ConnectionState
	Host  string
	Port  int
}

func (s BrokerStatus) Connected() bool { return s.State == StateConnected }
