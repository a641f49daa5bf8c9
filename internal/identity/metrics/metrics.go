package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity resolution.
type Metrics struct {
	Registrations    *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
	PrefilterResults prometheus.Histogram
}

// New registers identity metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_identity_registrations_total",
			Help: "Find-or-create registrations by outcome (created, matched)",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "benefits_identity_search_duration_seconds",
			Help:    "Duration of similarity searches",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		PrefilterResults: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "benefits_identity_prefilter_candidates",
			Help:    "Rows returned by the phonetic pre-filter per search",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) IncrementCreated() { m.Registrations.WithLabelValues("created").Inc() }
func (m *Metrics) IncrementMatched() { m.Registrations.WithLabelValues("matched").Inc() }

// ObserveSearch records one search. Call with time.Now() at the start of the
// operation.
func (m *Metrics) ObserveSearch(start time.Time, candidates int) {
	m.SearchDuration.Observe(time.Since(start).Seconds())
	m.PrefilterResults.Observe(float64(candidates))
}
