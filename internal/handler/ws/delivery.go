package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/xj1core/cloud-bridge/internal/domain/event"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
	"github.com/xj1core/cloud-bridge/internal/domain/registry"
	"github.com/xj1core/cloud-bridge/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
)

type WSHandler struct {
	logger   *slog.Logger
	hub      registry.Hubber
	ingester service.Ingester
	clock    clockwork.Clock
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, hub registry.Hubber, ingester service.Ingester, clock clockwork.Clock) *WSHandler {
	return &WSHandler{
		logger:   logger.With(slog.String("component", "ws")),
		hub:      hub,
		ingester: ingester,
		clock:    clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // No authentication on this bridge
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. UPGRADE TO WEBSOCKET
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close()

	// 2. ATTACH: status and replay are queued before the session sees any broadcast
	sess := registry.NewSession(registry.SessionMetadata{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		CreatedAt:  h.clock.Now(),
	}, h.hub.SendBuffer())

	if err := h.hub.Attach(sess); err != nil {
		h.logger.Warn("WS_ATTACH_REJECTED", "err", err, "remote", r.RemoteAddr)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer h.hub.Detach(sess.GetID())

	// 3. PUMPS: the writer is the only goroutine touching the connection for writes
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(conn, sess)
	}()

	h.readLoop(r.Context(), conn, sess)

	sess.Close()
	<-writerDone
}

func (h *WSHandler) writePump(conn *websocket.Conn, sess registry.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			return

		case frame := <-sess.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Warn("WS_SEND_FAILED", "err", err, "session_id", sess.GetID())
				sess.Close()
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sess.Close()
				_ = conn.Close()
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess registry.Session) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WS_READ_CLOSED", "err", err, "session_id", sess.GetID())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		in, err := event.Decode(data)
		if err != nil {
			h.logger.Warn("WS_DECODE_FAILED", "err", err, "session_id", sess.GetID())
			continue
		}
		h.dispatch(ctx, sess, in)
	}
}

// dispatch handles one client event. Replies go through the session queue.
func (h *WSHandler) dispatch(ctx context.Context, sess registry.Session, in *event.Inbound) {
	switch in.Event {
	case event.KindSendMessage:
		var p event.SendMessagePayload
		if len(in.Payload) > 0 {
			// A malformed payload leaves the message empty and is rejected as such.
			_ = json.Unmarshal(in.Payload, &p)
		}
		h.reply(sess, h.send(ctx, p.Message))

	case event.KindRequestStatus:
		h.hub.SendStatus(sess.GetID())

	default:
		h.logger.Debug("WS_UNKNOWN_EVENT", "event", in.Event, "session_id", sess.GetID())
	}
}

func (h *WSHandler) send(ctx context.Context, message string) *event.SendResultPayload {
	_, err := h.ingester.Ingest(ctx, model.Candidate{
		Content: message,
		Source:  service.SourceRealtime,
	}, model.OriginRealtime)
	if err != nil {
		return &event.SendResultPayload{Success: false, Error: model.Describe(err)}
	}
	return &event.SendResultPayload{Success: true, Message: message}
}

func (h *WSHandler) reply(sess registry.Session, payload *event.SendResultPayload) {
	frame, err := event.Encode(event.KindSendResult, h.clock.Now(), payload)
	if err != nil {
		h.logger.Error("WS_ENCODE_FAILED", "err", err)
		return
	}
	h.hub.Reply(sess.GetID(), frame)
}
