package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/internal/domain/history"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// Caller source defaults, one per ingress surface.
const (
	SourceHTTPSend     = "web_api"
	SourceHTTPDevice   = "xj1core_esp32"
	SourceRealtime     = "xj1cloud_web"
	SourcePeriodicSend = "xj1cloud"
)

// [ROUTER] PRIMARY INTERFACE FOR INGRESS HANDLERS (broker bus, HTTP, websocket, ticker)
type Ingester interface {
	Ingest(ctx context.Context, c model.Candidate, origin model.Origin) (model.Record, error)
}

// Publisher is the broker egress.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Broadcaster is the realtime egress.
type Broadcaster interface {
	Broadcast(rec model.Record)
}

// Interface guard
var _ Ingester = (*Router)(nil)

// Router applies the routing rules and is the only writer of the history buffer.
type Router struct {
	publisher    Publisher
	broadcaster  Broadcaster
	history      *history.Buffer
	defaultTopic string
	clock        clockwork.Clock
}

func NewRouter(pub Publisher, bc Broadcaster, buf *history.Buffer, defaultTopic string, clock clockwork.Clock) *Router {
	return &Router{
		publisher:    pub,
		broadcaster:  bc,
		history:      buf,
		defaultTopic: defaultTopic,
		clock:        clock,
	}
}

// Ingest routes one candidate message.
//
// Broker candidates are recorded as received and broadcast; they never go back to the broker.
// Caller candidates are validated, published, and only recorded and broadcast once the
// broker accepted them.
func (r *Router) Ingest(ctx context.Context, c model.Candidate, origin model.Origin) (model.Record, error) {
	switch {
	case origin == model.OriginBroker:
		return r.ingestInbound(c), nil
	case origin.FromCaller():
		return r.ingestOutbound(ctx, c)
	default:
		return model.Record{}, fmt.Errorf("router: unknown origin %d", origin)
	}
}

func (r *Router) ingestInbound(c model.Candidate) model.Record {
	rec := model.Record{
		Timestamp: r.stamp(c),
		Topic:     c.Topic,
		Content:   c.Content,
		Direction: model.DirectionReceived,
		Source:    c.Source,
	}

	rec = r.history.Append(rec)
	r.broadcaster.Broadcast(rec)
	return rec
}

func (r *Router) ingestOutbound(ctx context.Context, c model.Candidate) (model.Record, error) {
	// 1. [VALIDATION]
	if strings.TrimSpace(c.Content) == "" {
		return model.Record{}, model.ErrEmptyContent
	}

	// 2. [TOPIC_RESOLUTION] explicit override wins over the configured publish topic.
	topic := c.Topic
	if topic == "" {
		topic = r.defaultTopic
	}

	rec := model.Record{
		Timestamp: r.stamp(c),
		Topic:     topic,
		Content:   c.Content,
		Direction: model.DirectionSent,
		Source:    c.Source,
	}

	payload, err := model.EncodeOutbound(rec)
	if err != nil {
		return model.Record{}, fmt.Errorf("router: encode outbound: %w", err)
	}

	// 3. [EGRESS] history and fan-out only follow an accepted publish.
	if err := r.publisher.Publish(ctx, topic, payload); err != nil {
		return model.Record{}, err
	}

	rec = r.history.Append(rec)
	r.broadcaster.Broadcast(rec)
	return rec, nil
}

func (r *Router) stamp(c model.Candidate) time.Time {
	if !c.Timestamp.IsZero() {
		return c.Timestamp
	}
	return r.clock.Now()
}
