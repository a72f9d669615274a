package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

type recordedIngest struct {
	origin model.Origin
	err    error
}

type fakeRecorder struct {
	seen []recordedIngest
}

func (r *fakeRecorder) RecordIngest(origin model.Origin, err error) {
	r.seen = append(r.seen, recordedIngest{origin: origin, err: err})
}

func TestRouterMiddleware_RecordsAndLogsOutcome(t *testing.T) {
	f := newRouterFixture(t, 10)
	f.pub.err = model.ErrNotConnected

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := &fakeRecorder{}

	ing := NewRouterMiddleware(f.router, logger, rec)

	_, err := ing.Ingest(context.Background(), model.Candidate{Content: "hi"}, model.OriginRealtime)
	require.ErrorIs(t, err, model.ErrNotConnected)

	_, err = ing.Ingest(context.Background(), model.Candidate{Topic: "in", Content: "x"}, model.OriginBroker)
	require.NoError(t, err)

	require.Len(t, rec.seen, 2)
	assert.Equal(t, model.OriginRealtime, rec.seen[0].origin)
	assert.ErrorIs(t, rec.seen[0].err, model.ErrNotConnected)
	assert.Equal(t, model.OriginBroker, rec.seen[1].origin)
	assert.NoError(t, rec.seen[1].err)

	assert.Contains(t, logs.String(), "MESSAGE_ROUTING_FAILED")
	assert.Contains(t, logs.String(), "MESSAGE_ROUTED")
}

func TestRouterMiddleware_NilRecorder(t *testing.T) {
	f := newRouterFixture(t, 10)
	logger := slog.New(slog.DiscardHandler)

	ing := NewRouterMiddleware(f.router, logger, nil)
	_, err := ing.Ingest(context.Background(), model.Candidate{Content: " "}, model.OriginHTTP)
	assert.ErrorIs(t, err, model.ErrEmptyContent)
}
