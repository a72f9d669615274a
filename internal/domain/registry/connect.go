package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Interface guard
var _ Session = (*session)(nil)

// [SESSION] THE INTERFACE FOR EXTERNAL LAYERS (HUB / TRANSPORT)
// A session is either attached and receiving frames, or gone.
type Session interface {
	GetID() uuid.UUID
	Metadata() SessionMetadata
	Enqueue(frame []byte) bool // Non-blocking; false means the queue is full or the session is closed
	Frames() <-chan []byte
	Done() <-chan struct{}
	Close()
}

// [METADATA] EXPORTED FOR TRANSPORT AND LOGGING
type SessionMetadata struct {
	RemoteAddr string
	UserAgent  string
	CreatedAt  time.Time
}

type session struct {
	id       uuid.UUID
	metadata SessionMetadata
	sendCh   chan []byte
	doneCh   chan struct{}

	closeOnce sync.Once
}

func NewSession(meta SessionMetadata, bufferSize int) Session {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	return &session{
		id:       uuid.New(),
		metadata: meta,
		sendCh:   make(chan []byte, bufferSize),
		doneCh:   make(chan struct{}),
	}
}

func (s *session) GetID() uuid.UUID          { return s.id }
func (s *session) Metadata() SessionMetadata { return s.metadata }
func (s *session) Frames() <-chan []byte     { return s.sendCh }
func (s *session) Done() <-chan struct{}     { return s.doneCh }

func (s *session) Enqueue(frame []byte) bool {
	// [LIFECYCLE_GATE]
	select {
	case <-s.doneCh:
		return false
	default:
	}

	select {
	case s.sendCh <- frame:
		return true
	default:
		return false
	}
}

// Close signals the transport to stop. sendCh stays open so a concurrent Enqueue never panics.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		close(s.doneCh)
	})
}
