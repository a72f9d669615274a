package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// Supervisor re-dials the broker on a fixed interval whenever the link is down.
// There is no backoff.
type Supervisor struct {
	connector *Connector
	endpoint  Endpoint
	interval  time.Duration
	timeout   time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
}

func NewSupervisor(connector *Connector, ep Endpoint, interval, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		connector: connector,
		endpoint:  ep,
		interval:  interval,
		timeout:   timeout,
		clock:     clock,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if s.connector.State() != model.StateDisconnected {
				continue
			}
			if err := s.connector.Connect(ctx, s.endpoint, s.timeout); err != nil {
				s.logger.Warn("MQTT_SUPERVISOR_RETRY_FAILED", "err", err, "next_in", s.interval)
			}
		}
	}
}
