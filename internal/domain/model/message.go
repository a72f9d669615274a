package model

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the wall-clock format shared by the broker payload and the web clients.
const TimestampLayout = "2006-01-02 15:04:05"

//go:generate stringer -type=Direction
type Direction int8

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	DirectionReceived Direction = iota + 1
	DirectionSent
)

func (d Direction) String() string {
	switch d {
	case DirectionReceived:
		return "received"
	case DirectionSent:
		return "sent"
	default:
		return "unknown"
	}
}

// Origin identifies the ingress surface a candidate message arrived through.
type Origin int8

const (
	OriginBroker Origin = iota + 1
	OriginHTTP
	OriginRealtime
	OriginSchedule
)

func (o Origin) String() string {
	switch o {
	case OriginBroker:
		return "broker"
	case OriginHTTP:
		return "http"
	case OriginRealtime:
		return "realtime"
	case OriginSchedule:
		return "schedule"
	default:
		return "unknown"
	}
}

// FromCaller reports whether messages of this origin are routed to the broker.
func (o Origin) FromCaller() bool {
	return o == OriginHTTP || o == OriginRealtime || o == OriginSchedule
}

// [CANDIDATE] RAW INGRESS INPUT BEFORE NORMALIZATION
type Candidate struct {
	Timestamp time.Time
	Topic     string
	Content   string
	Source    string
}

// [RECORD] CANONICAL UNIT FLOWING THROUGH THE BRIDGE
// Records are passed by value; once stored in history they are only ever evicted.
type Record struct {
	Timestamp time.Time
	Topic     string
	Content   string
	Direction Direction
	Source    string

	// Seq is assigned by the history buffer and never leaves the process.
	Seq uint64
}

type recordJSON struct {
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Source    string `json:"source,omitempty"`
}

// MarshalJSON renders the record in the shape consumed by the web clients.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Timestamp: r.Timestamp.Format(TimestampLayout),
		Topic:     r.Topic,
		Message:   r.Content,
		Type:      r.Direction.String(),
		Source:    r.Source,
	})
}

// OutboundPayload is the JSON document published to the broker for caller-originated messages.
type OutboundPayload struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Source    string `json:"source"`
}

// EncodeOutbound wraps a record into the broker wire format.
func EncodeOutbound(r Record) ([]byte, error) {
	return json.Marshal(OutboundPayload{
		Timestamp: r.Timestamp.Format(TimestampLayout),
		Message:   r.Content,
		Source:    r.Source,
	})
}
