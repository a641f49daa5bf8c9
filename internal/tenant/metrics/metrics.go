package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"benefits/internal/tenant/models"
)

// Metrics provides observability for the tenant ledger.
type Metrics struct {
	TenantCreated prometheus.Counter
	BudgetUsed    *prometheus.GaugeVec
	BudgetOverrun *prometheus.GaugeVec
}

// New registers tenant metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TenantCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "benefits_tenants_created_total",
			Help: "Total number of tenants created",
		}),
		BudgetUsed: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "benefits_tenant_budget_used_centavos",
			Help: "Used budget per tenant as of the last ledger read",
		}, []string{"tenant"}),
		BudgetOverrun: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "benefits_tenant_budget_overrun_centavos",
			Help: "Amount by which used budget exceeds allocation per tenant",
		}, []string{"tenant"}),
	}
}

// IncrementTenantCreated records a successful tenant creation.
func (m *Metrics) IncrementTenantCreated() {
	m.TenantCreated.Inc()
}

// ObserveLedger records the current ledger state of t.
func (m *Metrics) ObserveLedger(t *models.Tenant) {
	m.BudgetUsed.WithLabelValues(t.Code).Set(float64(t.UsedBudget))
	m.BudgetOverrun.WithLabelValues(t.Code).Set(float64(t.Overrun()))
}
