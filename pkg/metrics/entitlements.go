package metrics

import "github.com/prometheus/client_golang/prometheus"

// Entitlement decision outcomes.
const (
	OutcomeAllowed        = "allowed"
	OutcomeNoLicense      = "denied_no_license"
	OutcomeNotEntitled    = "denied_not_entitled"
	OutcomeResolveFailure = "error"
)

// EntitlementMetrics counts feature access decisions.
type EntitlementMetrics struct {
	decisions *prometheus.CounterVec
}

// NewEntitlementMetrics registers the decision counter on the provided registerer.
func NewEntitlementMetrics(reg prometheus.Registerer) *EntitlementMetrics {
	if reg == nil {
		return &EntitlementMetrics{}
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_decisions_total",
		Help: "Feature access decisions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(decisions)
	return &EntitlementMetrics{decisions: decisions}
}

// Record counts one decision.
func (e *EntitlementMetrics) Record(outcome string) {
	if e == nil || e.decisions == nil {
		return
	}
	e.decisions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
