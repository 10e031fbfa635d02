package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Access decisions

	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_access_decisions_total",
			Help: "Total number of IMEI access decisions",
		},
		[]string{"subject_kind", "outcome", "basis"},
	)

	AccessErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_access_errors_total",
			Help: "Total number of access checks that failed before a verdict",
		},
		[]string{"code"},
	)

	// Verifications

	VerificationsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_verifications_recorded_total",
			Help: "Total number of device verifications written",
		},
		[]string{"subject_kind"},
	)

	// Audit

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_audit_write_failures_total",
			Help: "Total number of denial audit events that could not be stored",
		},
	)

	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "route_class", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route_class"},
	)
)

// Outcome labels a decision for AccessDecisionsTotal.
func Outcome(hasAccess bool) string {
	if hasAccess {
		return "permit"
	}
	return "deny"
}
