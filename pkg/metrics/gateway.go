package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks outbound payment gateway calls.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_request_retries_total",
		Help: "Retried payment gateway calls.",
	}, []string{"operation"})
	reg.MustRegister(duration, retries)
	return &GatewayMetrics{duration: duration, retries: retries}
}

// Observe records one completed gateway call.
func (g *GatewayMetrics) Observe(operation string, elapsed time.Duration, err error) {
	if g == nil || g.duration == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	g.duration.WithLabelValues(normalizeLabel(operation), outcome).Observe(elapsed.Seconds())
}

// IncRetry counts a retried attempt.
func (g *GatewayMetrics) IncRetry(operation string) {
	if g == nil || g.retries == nil {
		return
	}
	g.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}
