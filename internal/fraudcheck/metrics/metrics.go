package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"benefits/internal/fraudcheck/models"
)

// Metrics provides observability for the fraud-check worker.
type Metrics struct {
	Results  *prometheus.CounterVec
	Attempts prometheus.Histogram
	Retries  prometheus.Counter
}

// New registers fraud-check metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Results: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_fraud_check_results_total",
			Help: "Processed fraud-check tasks by final state",
		}, []string{"state"}),
		Attempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "benefits_fraud_check_attempts",
			Help:    "Attempts used per processed task",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "benefits_fraud_check_retries_total",
			Help: "Fraud-check attempts that failed transiently and were retried",
		}),
	}
}

func (m *Metrics) ObserveResult(r models.Result) {
	m.Results.WithLabelValues(string(r.State)).Inc()
	m.Attempts.Observe(float64(r.Attempts))
}

func (m *Metrics) IncrementRetry() {
	m.Retries.Inc()
}
