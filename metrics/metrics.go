// Package metrics exposes prometheus collectors of the command center. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "commandcenter"

type Metrics struct {
	EventsAppended  *prometheus.CounterVec
	AppendFailures  *prometheus.CounterVec
	IntentsRejected *prometheus.CounterVec
	SagasStarted    prometheus.Counter
	SagasRetired    *prometheus.CounterVec
	ActiveSagas     prometheus.Gauge
	Compensations   prometheus.Counter
}

// New creates the collectors and registers them in registerer. registerer may be nil, e.g. in tests.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events appended to the event store by type",
		}, []string{"type"}),
		AppendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_failures_total",
			Help:      "Failed appends to the event store by error kind",
		}, []string{"kind"}),
		IntentsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_rejected_total",
			Help:      "Intents rejected by aggregates by intent and error kind",
		}, []string{"intent", "kind"}),
		SagasStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sagas_started_total",
			Help:      "Command sagas created by the saga manager",
		}),
		SagasRetired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sagas_retired_total",
			Help:      "Command sagas removed from the active set by final status",
		}, []string{"status"}),
		ActiveSagas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sagas",
			Help:      "Command sagas waiting for acknowledgements",
		}),
		Compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Commands escalated because their deadline passed",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.EventsAppended,
			m.AppendFailures,
			m.IntentsRejected,
			m.SagasStarted,
			m.SagasRetired,
			m.ActiveSagas,
			m.Compensations,
		)
	}

	return m
}

func (m *Metrics) EventAppended(eventType string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) AppendFailed(kind string) {
	if m == nil {
		return
	}
	m.AppendFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) IntentRejected(intent, kind string) {
	if m == nil {
		return
	}
	m.IntentsRejected.WithLabelValues(intent, kind).Inc()
}

func (m *Metrics) SagaStarted() {
	if m == nil {
		return
	}
	m.SagasStarted.Inc()
}

func (m *Metrics) SagaRetired(status string) {
	if m == nil {
		return
	}
	m.SagasRetired.WithLabelValues(status).Inc()
}

func (m *Metrics) SetActiveSagas(n int) {
	if m == nil {
		return
	}
	m.ActiveSagas.Set(float64(n))
}

func (m *Metrics) Compensated() {
	if m == nil {
		return
	}
	m.Compensations.Inc()
}
