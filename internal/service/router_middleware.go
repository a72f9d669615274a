package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// IngestRecorder receives the outcome of every ingest. Implemented by the metrics adapter.
type IngestRecorder interface {
	RecordIngest(origin model.Origin, err error)
}

// RouterMiddleware implements [DECORATOR_PATTERN] to add observability
// to routing without touching the routing rules.
type RouterMiddleware struct {
	Next     Ingester
	Logger   *slog.Logger
	Recorder IngestRecorder
}

// NewRouterMiddleware creates a logging decorator for the Ingester. recorder may be nil.
func NewRouterMiddleware(next Ingester, logger *slog.Logger, recorder IngestRecorder) Ingester {
	return &RouterMiddleware{
		Next:     next,
		Logger:   logger,
		Recorder: recorder,
	}
}

// Ingest wraps routing with execution timing and outcome logging.
func (m *RouterMiddleware) Ingest(ctx context.Context, c model.Candidate, origin model.Origin) (model.Record, error) {
	start := time.Now()

	rec, err := m.Next.Ingest(ctx, c, origin)

	duration := time.Since(start)
	if m.Recorder != nil {
		m.Recorder.RecordIngest(origin, err)
	}

	switch {
	case err == nil:
		m.Logger.Debug("MESSAGE_ROUTED",
			"origin", origin.String(),
			"topic", rec.Topic,
			"type", rec.Direction.String(),
			"source", rec.Source,
			"duration_ms", duration.Milliseconds(),
		)
	case errors.Is(err, model.ErrEmptyContent):
		// Caller mistake, not a bridge failure.
		m.Logger.Debug("MESSAGE_REJECTED", "origin", origin.String(), "err", err)
	default:
		m.Logger.Error("MESSAGE_ROUTING_FAILED",
			"origin", origin.String(),
			"topic", c.Topic,
			"err", err,
			"duration_ms", duration.Milliseconds(),
		)
	}

	return rec, err
}
