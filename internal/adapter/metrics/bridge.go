package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// Ingest outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeRejected     = "rejected"
	OutcomeNotConnected = "not_connected"
	OutcomeFailed       = "failed"
)

// BridgeMetrics holds Prometheus metrics for routing and the broker link.
type BridgeMetrics struct {
	reg prometheus.Registerer

	IngestTotal     *prometheus.CounterVec
	BrokerConnected prometheus.Gauge
	BrokerState     prometheus.Gauge
	StateChanges    prometheus.Counter
}

// NewBridgeMetrics creates and registers bridge metrics on the given registry.
func NewBridgeMetrics(reg prometheus.Registerer) *BridgeMetrics {
	m := &BridgeMetrics{
		reg: reg,
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "ingest_total",
			Help:      "Messages handed to the router, by ingress surface and outcome.",
		}, []string{"origin", "outcome"}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "connected",
			Help:      "1 while the broker link is connected.",
		}),
		BrokerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "state",
			Help:      "Broker link state: 0 disconnected, 1 connecting, 2 connected.",
		}),
		StateChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "state_changes_total",
			Help:      "Total number of broker link state transitions.",
		}),
	}

	reg.MustRegister(m.IngestTotal, m.BrokerConnected, m.BrokerState, m.StateChanges)
	return m
}

// RecordIngest counts one routing attempt.
func (m *BridgeMetrics) RecordIngest(origin model.Origin, err error) {
	m.IngestTotal.WithLabelValues(origin.String(), outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, model.ErrEmptyContent):
		return OutcomeRejected
	case errors.Is(err, model.ErrNotConnected):
		return OutcomeNotConnected
	default:
		return OutcomeFailed
	}
}

// OnBrokerState mirrors every link transition.
func (m *BridgeMetrics) OnBrokerState(st model.BrokerStatus) {
	m.StateChanges.Inc()
	m.BrokerState.Set(float64(st.State))
	if st.Connected() {
		m.BrokerConnected.Set(1)
	} else {
		m.BrokerConnected.Set(0)
	}
}

// WatchSessions exposes the live realtime session count.
func (m *BridgeMetrics) WatchSessions(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "active_sessions",
		Help:      "Number of attached realtime sessions.",
	}, func() float64 { return float64(count()) }))
}

// WatchSlowDrops exposes how many realtime sessions were dropped for falling behind.
func (m *BridgeMetrics) WatchSlowDrops(dropped func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "realtime",
		Name:      "slow_sessions_dropped_total",
		Help:      "Total number of realtime sessions dropped because their queue was full.",
	}, func() float64 { return float64(dropped()) }))
}

// WatchInboundDrops exposes inbound broker messages shed by the connector mailbox.
func (m *BridgeMetrics) WatchInboundDrops(dropped func() uint64) {
	m.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "inbound_dropped_total",
		Help:      "Total number of inbound broker messages dropped because the mailbox was full.",
	}, func() float64 { return float64(dropped()) }))
}

// WatchHistory exposes the current history length.
func (m *BridgeMetrics) WatchHistory(length func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "history",
		Name:      "records",
		Help:      "Number of records currently held in history.",
	}, func() float64 { return float64(length()) }))
}
