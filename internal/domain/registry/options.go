package registry

import (
	"github.com/jonboulle/clockwork"
)

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithHistoryReplay sets how many of the newest records a fresh session is sent.
func WithHistoryReplay(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.config.replay = n
		}
	}
}

// WithSendBuffer sets the [BACKPRESSURE] threshold: the per-session queue length
// beyond which a slow client is dropped.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.sendBuffer = size
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) {
		h.clock = clock
	}
}
