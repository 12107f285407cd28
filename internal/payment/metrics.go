package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the payment counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Initiations         *prometheus.CounterVec
	PersistenceWarnings prometheus.Counter
	Callbacks           *prometheus.CounterVec
	Anomalies           *prometheus.CounterVec
	StatusLookups       *prometheus.CounterVec
	GatewayLatency      prometheus.Histogram
	Events              *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Initiations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payconfirm_initiations_total",
			Help: "Payment initiation attempts by result",
		}, []string{"result"}),
		PersistenceWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "payconfirm_persistence_warnings_total",
			Help: "Accepted gateway pushes whose ledger record could not be written",
		}),
		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payconfirm_callbacks_total",
			Help: "Gateway callbacks by outcome",
		}, []string{"outcome"}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payconfirm_reconciliation_anomalies_total",
			Help: "Callbacks that matched no pending record, by reason",
		}, []string{"reason"}),
		StatusLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payconfirm_status_lookups_total",
			Help: "Status reads by returned status",
		}, []string{"status"}),
		GatewayLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payconfirm_gateway_push_duration_seconds",
			Help:    "Latency of push-prompt requests to the gateway",
			Buckets: prometheus.DefBuckets,
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payconfirm_events_total",
			Help: "Payment lifecycle events seen on the bus, by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) initiation(result string) {
	if m == nil {
		return
	}
	m.Initiations.WithLabelValues(result).Inc()
}

func (m *Metrics) persistenceWarning() {
	if m == nil {
		return
	}
	m.PersistenceWarnings.Inc()
}

func (m *Metrics) callback(outcome string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) anomaly(reason string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(reason).Inc()
}

func (m *Metrics) statusLookup(status string) {
	if m == nil {
		return
	}
	m.StatusLookups.WithLabelValues(status).Inc()
}

func (m *Metrics) event(eventType string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) gatewayTimer() *prometheus.Timer {
	if m == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(m.GatewayLatency)
}
