package router

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts router activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	dispatched    prometheus.Counter
	duplicates    prometheus.Counter
	unrouted      prometheus.Counter
	replayed      prometheus.Counter
	registrations prometheus.Gauge
	byType        *prometheus.CounterVec
}

// NewMetrics creates the router collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lotus_live_events_dispatched_total",
			Help: "Events delivered to at least one listener.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lotus_live_events_duplicate_total",
			Help: "Events dropped because the same event instance was already seen.",
		}),
		unrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lotus_live_events_unrouted_total",
			Help: "Events cached for replay because no listener was registered.",
		}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lotus_live_events_replayed_total",
			Help: "Cached events replayed to late registrants.",
		}),
		registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lotus_live_router_registrations",
			Help: "Listeners currently registered with the router.",
		}),
		byType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lotus_live_events_received_total",
			Help: "Events received from the transport, by event type.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatched, m.duplicates, m.unrouted, m.replayed, m.registrations, m.byType)
	}
	return m
}

func (m *Metrics) incDispatched() {
	if m != nil {
		m.dispatched.Inc()
	}
}

func (m *Metrics) incDuplicates() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) incUnrouted() {
	if m != nil {
		m.unrouted.Inc()
	}
}

func (m *Metrics) incReplayed() {
	if m != nil {
		m.replayed.Inc()
	}
}

func (m *Metrics) addRegistrations(n int) {
	if m != nil {
		m.registrations.Add(float64(n))
	}
}

func (m *Metrics) incReceived(eventType string) {
	if m != nil {
		m.byType.WithLabelValues(eventType).Inc()
	}
}
