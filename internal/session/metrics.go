package session

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinytelemetry/lotus-live/internal/lifecycle"
)

type metrics struct {
	states      *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	created     prometheus.Counter
	rejected    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		states: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lotus_live_instruments",
			Help: "Instruments currently owned by the session, by lifecycle state.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lotus_live_state_transitions_total",
			Help: "Published lifecycle transitions, by target state.",
		}, []string{"state"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lotus_live_instruments_created_total",
			Help: "Instruments created through the session.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lotus_live_saves_rejected_total",
			Help: "Save attempts rejected by local validation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.states, m.transitions, m.created, m.rejected)
	}
	return m
}

func (m *metrics) move(from, to lifecycle.State) {
	if from != "" {
		m.states.WithLabelValues(string(from)).Dec()
	}
	if to != "" {
		m.states.WithLabelValues(string(to)).Inc()
	}
}
