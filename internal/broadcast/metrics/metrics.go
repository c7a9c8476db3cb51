package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers outbound partner traffic.
type Metrics struct {
	// Final call outcomes by partner and error category ("ok" on success)
	Calls   *prometheus.CounterVec
	Retries *prometheus.CounterVec

	CallDuration *prometheus.HistogramVec

	// Token cache lookups by result: hit, miss, error
	TokenLookups *prometheus.CounterVec

	LimiterWait *prometheus.HistogramVec

	CircuitOpen *prometheus.GaugeVec
}

// New registers the broadcast metrics. Call it once per process.
func New() *Metrics {
	return &Metrics{
		Calls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_broadcast_calls_total",
			Help: "Partner broadcasts by partner and outcome",
		}, []string{"partner", "outcome"}),

		Retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_broadcast_retries_total",
			Help: "Retried partner call attempts",
		}, []string{"partner"}),

		CallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "immersion_broadcast_call_duration_seconds",
			Help:    "Time spent broadcasting one event to a partner, retries included",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 180},
		}, []string{"partner"}),

		TokenLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "immersion_broadcast_token_lookups_total",
			Help: "Token cache lookups by scope and result",
		}, []string{"scope", "result"}),

		LimiterWait: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "immersion_broadcast_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: []float64{0, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"limiter"}),

		CircuitOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "immersion_broadcast_circuit_open",
			Help: "1 while the partner circuit breaker is open",
		}, []string{"partner"}),
	}
}

func (m *Metrics) IncrementCall(partner, outcome string) {
	if m != nil {
		m.Calls.WithLabelValues(partner, outcome).Inc()
	}
}

func (m *Metrics) IncrementRetry(partner string) {
	if m != nil {
		m.Retries.WithLabelValues(partner).Inc()
	}
}

func (m *Metrics) ObserveCall(partner string, d time.Duration) {
	if m != nil {
		m.CallDuration.WithLabelValues(partner).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementTokenLookup(scope, result string) {
	if m != nil {
		m.TokenLookups.WithLabelValues(scope, result).Inc()
	}
}

func (m *Metrics) ObserveLimiterWait(limiter string, d time.Duration) {
	if m != nil {
		m.LimiterWait.WithLabelValues(limiter).Observe(d.Seconds())
	}
}

func (m *Metrics) SetCircuitOpen(partner string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitOpen.WithLabelValues(partner).Set(v)
}
