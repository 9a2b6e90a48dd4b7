package dataverse

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts platform calls by operation and outcome so deployments can
// be observed without scraping logs.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics registers the gateway collectors on the provided registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erdbridge",
			Subsystem: "dataverse",
			Name:      "requests_total",
			Help:      "Platform requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests)
	}
	return m
}

// ObserveRequest records one finished platform call.
func (m *Metrics) ObserveRequest(operation, outcome string) {
	m.requests.WithLabelValues(operation, outcome).Inc()
}
