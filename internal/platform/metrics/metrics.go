// Package metrics builds the process-wide Prometheus registry. Each domain
// package registers its own collectors against it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewRegistry returns a registry carrying Go runtime, process and build
// info collectors.
func NewRegistry(version string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Name: "benefits_build_info",
		Help: "Build version of the running binary",
	}, []string{"version"}).WithLabelValues(version).Set(1)
	return reg
}
