package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for asynchronous event dispatch.
type Metrics struct {
	// Handler outcomes by subscriber: ok, error, skipped
	DispatchOutcomes *prometheus.CounterVec

	DispatchDuration *prometheus.HistogramVec

	// Events pulled by the worker on each polling pass
	BatchSize prometheus.Histogram

	Quarantined *prometheus.CounterVec
	Released    prometheus.Counter
	Requeued    prometheus.Counter
}

// New registers the outbox metrics. Call it once per process.
func New() *Metrics {
	return &Metrics{
		DispatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_outbox_dispatch_total",
			Help: "Event handler invocations by subscriber and outcome",
		}, []string{"subscriber", "outcome"}),

		DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "immersion_outbox_dispatch_duration_seconds",
			Help:    "Time to dispatch one event to every subscriber of its topic",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
		}, []string{"topic"}),

		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "immersion_outbox_batch_size",
			Help:    "Unpublished events fetched per polling pass",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		Quarantined: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_outbox_quarantined_total",
			Help: "Events excluded from dispatch by origin: sanity_check, poison, operator",
		}, []string{"origin"}),

		Released: promauto.NewCounter(prometheus.CounterOpts{
			Name: "immersion_outbox_released_total",
			Help: "Quarantined events released back to the dispatch queue",
		}),

		Requeued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "immersion_outbox_requeued_total",
			Help: "Failed events put back in the dispatch queue by an operator",
		}),
	}
}

func (m *Metrics) IncrementOutcome(subscriber, outcome string) {
	if m != nil {
		m.DispatchOutcomes.WithLabelValues(subscriber, outcome).Inc()
	}
}

func (m *Metrics) ObserveDispatch(topic string, d time.Duration) {
	if m != nil {
		m.DispatchDuration.WithLabelValues(topic).Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveBatch(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}

func (m *Metrics) IncrementQuarantined(origin string) {
	if m != nil {
		m.Quarantined.WithLabelValues(origin).Inc()
	}
}

func (m *Metrics) IncrementReleased() {
	if m != nil {
		m.Released.Inc()
	}
}

func (m *Metrics) IncrementRequeued() {
	if m != nil {
		m.Requeued.Inc()
	}
}
