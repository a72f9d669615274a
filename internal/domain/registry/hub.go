/*
Package registry owns the set of realtime sessions and everything pushed to them.

Key Architectural Concepts:
  - Replay First: a session receives the broker status and the history replay before it
    becomes visible to broadcasts, so no live frame can overtake the replay.
  - Encode Once: every server event is marshaled a single time and the same bytes are
    queued to every session.
  - Backpressure: queues are bounded and never waited on; a session that cannot keep up
    is dropped instead of slowing the bridge down.
*/
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/internal/domain/event"
	"github.com/xj1core/cloud-bridge/internal/domain/history"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

var (
	ErrHubClosed      = errors.New("registry: hub is shut down")
	ErrReplayOverflow = errors.New("registry: session queue too small for the initial replay")
)

// Hubber defines the gateway for session management and fan-out.
type Hubber interface {
	Attach(s Session) error
	Detach(id uuid.UUID)
	Broadcast(rec model.Record)
	SendStatus(id uuid.UUID) bool
	Reply(id uuid.UUID, frame []byte) bool
	SendBuffer() int
	Count() int
	Shutdown()
}

// StatusSource is the broker link as seen by the hub.
type StatusSource interface {
	Status() model.BrokerStatus
}

// Interface guard
var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	replay     int
	sendBuffer int
}

// member pairs a session with the newest history sequence its replay covered.
type member struct {
	session Session
	since   uint64
}

type Hub struct {
	mu      sync.Mutex
	members map[uuid.UUID]*member
	closed  bool

	history history.Reader
	status  StatusSource
	clock   clockwork.Clock
	logger  *slog.Logger
	config  hubConfig

	slowDropped atomic.Uint64
}

func NewHub(hist history.Reader, status StatusSource, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		members: make(map[uuid.UUID]*member),
		history: hist,
		status:  status,
		clock:   clockwork.NewRealClock(),
		logger:  logger.With(slog.String("component", "hub")),
		config: hubConfig{
			replay:     20,
			sendBuffer: 64,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SendBuffer is the queue length sessions should be created with.
func (h *Hub) SendBuffer() int { return h.config.sendBuffer }

// Attach queues the status snapshot and the history replay, then makes s visible to broadcasts.
func (h *Hub) Attach(s Session) error {
	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.Close()
		return ErrHubClosed
	}

	// [REPLAY_UNDER_LOCK]
	// Broadcasts and state changes also take mu, so nothing can be queued between
	// these two frames and the insertion below.
	statusFrame, err := event.Encode(event.KindStatusUpdate, now, event.NewStatusPayload(h.status.Status()))
	if err != nil {
		s.Close()
		return err
	}

	recs, seq := h.history.Snapshot(h.config.replay)
	historyFrame, err := event.HistoryFrame(now, recs)
	if err != nil {
		s.Close()
		return err
	}

	if !s.Enqueue(statusFrame) || !s.Enqueue(historyFrame) {
		s.Close()
		return ErrReplayOverflow
	}

	h.members[s.GetID()] = &member{session: s, since: seq}

	h.logger.Info("SESSION_ATTACHED",
		"session_id", s.GetID(),
		"remote", s.Metadata().RemoteAddr,
		"replayed", len(recs),
		"sessions", len(h.members),
	)
	return nil
}

// Detach removes and closes the session. Unknown ids are ignored.
func (h *Hub) Detach(id uuid.UUID) {
	h.mu.Lock()
	m, ok := h.members[id]
	if ok {
		delete(h.members, id)
	}
	remaining := len(h.members)
	h.mu.Unlock()

	if ok {
		m.session.Close()
		h.logger.Info("SESSION_DETACHED", "session_id", id, "sessions", remaining)
	}
}

// Broadcast fans a routed record out as new_message.
// Records already covered by a session's replay are skipped for that session.
func (h *Hub) Broadcast(rec model.Record) {
	frame, err := event.NewMessageFrame(h.clock.Now(), rec)
	if err != nil {
		h.logger.Error("BROADCAST_ENCODE_FAILED", "err", err, "topic", rec.Topic)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, m := range h.members {
		if rec.Seq != 0 && rec.Seq <= m.since {
			continue
		}
		h.pushLocked(id, m, frame)
	}
}

// OnBrokerState pushes a status_update to every session.
func (h *Hub) OnBrokerState(st model.BrokerStatus) {
	frame, err := event.Encode(event.KindStatusUpdate, h.clock.Now(), event.NewStatusPayload(st))
	if err != nil {
		h.logger.Error("STATUS_ENCODE_FAILED", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, m := range h.members {
		h.pushLocked(id, m, frame)
	}
}

// SendStatus answers request_status: current status plus history length, to one session.
func (h *Hub) SendStatus(id uuid.UUID) bool {
	payload := event.NewStatusPayload(h.status.Status()).WithCount(h.history.Len())
	frame, err := event.Encode(event.KindStatusUpdate, h.clock.Now(), payload)
	if err != nil {
		h.logger.Error("STATUS_ENCODE_FAILED", "err", err)
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[id]
	if !ok {
		return false
	}
	return h.pushLocked(id, m, frame)
}

// Reply queues an already encoded frame to a single session.
func (h *Hub) Reply(id uuid.UUID, frame []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.members[id]
	if !ok {
		return false
	}
	return h.pushLocked(id, m, frame)
}

// pushLocked must be called with mu held. A full queue costs the session its membership.
func (h *Hub) pushLocked(id uuid.UUID, m *member, frame []byte) bool {
	if m.session.Enqueue(frame) {
		return true
	}

	delete(h.members, id)
	m.session.Close()
	h.slowDropped.Add(1)
	h.logger.Warn("SESSION_DROPPED_SLOW", "session_id", id, "remote", m.session.Metadata().RemoteAddr)
	return false
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

// SlowDropped reports how many sessions were dropped for not keeping up.
func (h *Hub) SlowDropped() uint64 { return h.slowDropped.Load() }

// Shutdown closes every session and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	members := h.members
	h.members = make(map[uuid.UUID]*member)
	h.closed = true
	h.mu.Unlock()

	for _, m := range members {
		m.session.Close()
	}
	h.logger.Info("HUB_SHUTDOWN", "closed_sessions", len(members))
}
