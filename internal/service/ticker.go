package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// LinkState reports the broker connection state.
type LinkState interface {
	State() model.ConnectionState
}

// SessionCounter reports how many realtime sessions are attached.
type SessionCounter interface {
	Count() int
}

// PeriodicSender publishes a fixed message on an interval while the broker link is up
// and nobody is watching from the web.
type PeriodicSender struct {
	ingester Ingester
	link     LinkState
	sessions SessionCounter
	message  string
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewPeriodicSender(ing Ingester, link LinkState, sessions SessionCounter, message string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *PeriodicSender {
	return &PeriodicSender{
		ingester: ing,
		link:     link,
		sessions: sessions,
		message:  message,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *PeriodicSender) Run(ctx context.Context) {
	p.logger.Info("PERIODIC_SEND_STARTED", "interval", p.interval)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

// tick reports whether a message was handed to the router.
func (p *PeriodicSender) tick(ctx context.Context) bool {
	if p.link.State() != model.StateConnected {
		return false
	}
	if p.sessions.Count() > 0 {
		return false
	}

	_, err := p.ingester.Ingest(ctx, model.Candidate{
		Content: p.message,
		Source:  SourcePeriodicSend,
	}, model.OriginSchedule)
	if err != nil {
		p.logger.Warn("PERIODIC_SEND_FAILED", "err", err)
		return false
	}
	return true
}
