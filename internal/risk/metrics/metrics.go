package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"benefits/internal/risk/models"
)

// Metrics provides observability for risk scoring.
type Metrics struct {
	Verdicts          *prometheus.CounterVec
	Flags             *prometheus.CounterVec
	AssessDuration    prometheus.Histogram
	SuppressedMatches prometheus.Counter
}

// New registers risk metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_risk_verdicts_total",
			Help: "Risk verdicts by level",
		}, []string{"level"}),
		Flags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_risk_flags_total",
			Help: "Fired risk flags by kind",
		}, []string{"kind"}),
		AssessDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "benefits_risk_assess_duration_seconds",
			Help:    "Duration of risk assessments",
			Buckets: prometheus.DefBuckets,
		}),
		SuppressedMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "benefits_risk_whitelist_suppressed_total",
			Help: "Candidates removed from scoring by a confirmed-distinct adjudication",
		}),
	}
}

func (m *Metrics) ObserveVerdict(start time.Time, v *models.Verdict) {
	m.AssessDuration.Observe(time.Since(start).Seconds())
	m.Verdicts.WithLabelValues(string(v.Level)).Inc()
	for _, f := range v.Flags {
		m.Flags.WithLabelValues(string(f.Kind)).Inc()
	}
}

func (m *Metrics) AddSuppressed(n int) {
	m.SuppressedMatches.Add(float64(n))
}
