package auditchain

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	auditAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_chain_appends_total",
			Help: "Total number of audit entries appended to the chain",
		},
		[]string{"outcome"},
	)

	auditFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_fallback_events_total",
			Help: "Total number of audit entries routed to the fallback sink",
		},
	)
)

func init() {
	prometheus.MustRegister(auditAppendsTotal, auditFallbackTotal)
}
