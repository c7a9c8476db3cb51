package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the synchronous side of the workflow: accepted and refused
// transitions and the events they enqueue.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	RejectedChanges *prometheus.CounterVec
	EventsEnqueued  *prometheus.CounterVec
}

// New registers the convention metrics. Call it once per process.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_convention_transitions_total",
			Help: "Accepted convention status transitions by target status",
		}, []string{"status"}),

		RejectedChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_convention_transition_rejections_total",
			Help: "Refused convention status transitions by error code",
		}, []string{"code"}),

		EventsEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_outbox_events_enqueued_total",
			Help: "Domain events appended to the outbox by topic",
		}, []string{"topic"}),
	}
}

func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.Transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementRejected(code string) {
	if m != nil {
		m.RejectedChanges.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncrementEnqueued(topic string) {
	if m != nil {
		m.EventsEnqueued.WithLabelValues(topic).Inc()
	}
}
