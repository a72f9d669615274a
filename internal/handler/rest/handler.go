package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/xj1core/cloud-bridge/config"
	"github.com/xj1core/cloud-bridge/internal/domain/history"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
	"github.com/xj1core/cloud-bridge/internal/service"
)

// messagesLimit is how many records GET /api/messages returns.
const messagesLimit = 50

// Link is the broker connection as the HTTP surface needs it.
type Link interface {
	Status() model.BrokerStatus
	Reconnect(ctx context.Context, timeout time.Duration) error
}

type Handler struct {
	ingester service.Ingester
	link     Link
	history  history.Reader
	cfg      *config.Config
	logger   *slog.Logger
}

func NewHandler(ingester service.Ingester, link Link, hist history.Reader, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		ingester: ingester,
		link:     link,
		history:  hist,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "http")),
	}
}

type statusResponse struct {
	MQTTConnected   bool   `json:"mqtt_connected"`
	ConnectionState string `json:"connection_state"`
	BrokerHost      string `json:"broker_host"`
	BrokerPort      int    `json:"broker_port"`
	PublishTopic    string `json:"publish_topic"`
	SubscribeTopic  string `json:"subscribe_topic"`
	MessageCount    int    `json:"message_count"`
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.link.Status()
	writeJSON(w, http.StatusOK, statusResponse{
		MQTTConnected:   st.Connected(),
		ConnectionState: st.State.String(),
		BrokerHost:      h.cfg.MQTT.BrokerHost,
		BrokerPort:      h.cfg.MQTT.BrokerPort,
		PublishTopic:    h.cfg.MQTT.PublishTopic,
		SubscribeTopic:  h.cfg.MQTT.SubscribeTopic,
		MessageCount:    h.history.Len(),
	})
}

// Messages handles GET /api/messages.
func (h *Handler) Messages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.history.Recent(messagesLimit))
}

// Config handles GET /api/config. Secrets are masked.
func (h *Handler) Config(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Redacted())
}

type sendResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Send handles POST /api/send: always the configured publish topic.
//
// [LOOSE_VALIDATION]
// An empty message is a 200 with success=false; only broker trouble is a 500.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	req, err := decodePublishRequest(w, r, false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, sendResponse{Success: false, Error: err.Error()})
		return
	}

	source := req.Source
	if source == "" {
		source = service.SourceHTTPSend
	}

	rec, err := h.ingester.Ingest(r.Context(), model.Candidate{
		Content: req.Message,
		Source:  source,
	}, model.OriginHTTP)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sendResponse{
			Success:   true,
			Message:   rec.Content,
			Timestamp: rec.Timestamp.Format(model.TimestampLayout),
			Topic:     rec.Topic,
		})
	case errors.Is(err, model.ErrEmptyContent):
		writeJSON(w, http.StatusOK, sendResponse{Success: false, Error: model.Describe(err)})
	default:
		writeJSON(w, http.StatusInternalServerError, sendResponse{Success: false, Error: model.Describe(err)})
	}
}

type deviceData struct {
	Content   string `json:"content"`
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

type deviceResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    *deviceData `json:"data,omitempty"`
	Code    int         `json:"code"`
}

// Publish handles POST /api/mqtt/publish, the device-oriented endpoint.
// Accepts JSON, form or raw text and allows a topic override.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	req, err := decodePublishRequest(w, r, true)
	if err != nil {
		writeDeviceError(w, http.StatusBadRequest, err.Error())
		return
	}

	source := req.Source
	if source == "" {
		source = service.SourceHTTPDevice
	}

	rec, err := h.ingester.Ingest(r.Context(), model.Candidate{
		Topic:   req.Topic,
		Content: req.Message,
		Source:  source,
	}, model.OriginHTTP)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, deviceResponse{
			Status:  "success",
			Message: "message published",
			Data: &deviceData{
				Content:   rec.Content,
				Topic:     rec.Topic,
				Timestamp: rec.Timestamp.Format(model.TimestampLayout),
				Source:    rec.Source,
			},
			Code: http.StatusOK,
		})
	case errors.Is(err, model.ErrEmptyContent):
		writeDeviceError(w, http.StatusBadRequest, model.Describe(err))
	default:
		writeDeviceError(w, http.StatusInternalServerError, model.Describe(err))
	}
}

type reconnectResponse struct {
	Success         bool   `json:"success"`
	ConnectionState string `json:"connection_state"`
	Error           string `json:"error,omitempty"`
}

// Reconnect handles POST /api/mqtt/reconnect.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	err := h.link.Reconnect(r.Context(), h.cfg.MQTT.ConnectTimeout)
	state := h.link.Status().State.String()

	if err != nil {
		h.logger.Warn("MQTT_RECONNECT_REQUEST_FAILED", "err", err)
		writeJSON(w, http.StatusInternalServerError, reconnectResponse{
			Success:         false,
			ConnectionState: state,
			Error:           model.Describe(err),
		})
		return
	}

	h.logger.Info("MQTT_RECONNECT_REQUEST_SUCCEEDED")
	writeJSON(w, http.StatusOK, reconnectResponse{Success: true, ConnectionState: state})
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready: ready means the broker link is up.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	st := h.link.Status()
	if !st.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "broker": st.State.String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "broker": st.State.String()})
}

func writeDeviceError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, deviceResponse{Status: "error", Message: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
