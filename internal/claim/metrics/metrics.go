package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"benefits/internal/claim/models"
	id "benefits/pkg/domain"
)

// Metrics provides observability for the claim lifecycle.
type Metrics struct {
	Submitted        *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	DisbursedAmount  prometheus.Counter
	StuckFraudChecks prometheus.Gauge
}

// New registers claim metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_claims_submitted_total",
			Help: "Submitted claims by scoring mode (sync, async) and flag outcome",
		}, []string{"mode", "flagged"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benefits_claim_transitions_total",
			Help: "Applied claim status transitions by target status",
		}, []string{"to"}),
		DisbursedAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "benefits_claims_disbursed_centavos_total",
			Help: "Total disbursed amount in centavos",
		}),
		StuckFraudChecks: f.NewGauge(prometheus.GaugeOpts{
			Name: "benefits_claims_stuck_fraud_check",
			Help: "Claims waiting in PENDING_FRAUD_CHECK past the stuck threshold",
		}),
	}
}

func (m *Metrics) IncrementSubmitted(mode string, flagged bool) {
	f := "false"
	if flagged {
		f = "true"
	}
	m.Submitted.WithLabelValues(mode, f).Inc()
}

func (m *Metrics) IncrementTransition(to models.Status) {
	m.Transitions.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) AddDisbursed(amount id.Money) {
	m.DisbursedAmount.Add(float64(amount))
}

func (m *Metrics) SetStuck(n int) {
	m.StuckFraudChecks.Set(float64(n))
}
