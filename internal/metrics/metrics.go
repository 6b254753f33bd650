// Package metrics содержит счётчики Prometheus сервиса учёта использования.
// Все методы безопасны для nil-получателя, чтобы сервисы в тестах можно было
// собирать без реестра.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goflexconnect"

// Metrics набор метрик сервиса.
type Metrics struct {
	eventsRecorded       *prometheus.CounterVec
	trackingFailures     prometheus.Counter
	limitDenials         *prometheus.CounterVec
	alertsRaised         *prometheus.CounterVec
	telemetrySubscribers prometheus.Gauge
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_recorded_total",
			Help:      "Usage events written to the ledger.",
		}, []string{"event_type", "is_test"}),
		trackingFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_tracking_failures_total",
			Help:      "Usage events that could not be written.",
		}),
		limitDenials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_limit_denials_total",
			Help:      "Actions denied because a plan limit was reached.",
		}, []string{"limit_type"}),
		alertsRaised: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_alerts_raised_total",
			Help:      "Admin alerts raised, by kind.",
		}, []string{"kind"}),
		telemetrySubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "telemetry_stream_subscribers",
			Help:      "Open admin telemetry websocket streams.",
		}),
	}
}

// EventRecorded учитывает записанное событие.
func (m *Metrics) EventRecorded(eventType string, isTest bool) {
	if m == nil {
		return
	}
	label := "false"
	if isTest {
		label = "true"
	}
	m.eventsRecorded.WithLabelValues(eventType, label).Inc()
}

// TrackingFailed учитывает неудачную запись события.
func (m *Metrics) TrackingFailed() {
	if m == nil {
		return
	}
	m.trackingFailures.Inc()
}

// LimitDenied учитывает отказ по лимиту.
func (m *Metrics) LimitDenied(limitType string) {
	if m == nil {
		return
	}
	m.limitDenials.WithLabelValues(limitType).Inc()
}

// AlertRaised учитывает поднятое оповещение.
func (m *Metrics) AlertRaised(kind string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(kind).Inc()
}

// SubscriberAdded отмечает открытие потока телеметрии.
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.telemetrySubscribers.Inc()
}

// SubscriberRemoved отмечает закрытие потока телеметрии.
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.telemetrySubscribers.Dec()
}
