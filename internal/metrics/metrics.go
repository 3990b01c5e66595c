// Package metrics holds the Prometheus instruments used across the service.
// All collectors are registered with the global registry, so mounting
// promhttp.Handler() on /metrics is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandconfig_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brandconfig_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandconfig_auth_failures_total",
			Help: "Rejected authentication attempts by reason.",
		},
		[]string{"reason"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brandconfig_rate_limited_total",
			Help: "Requests rejected by the per-principal rate limiter.",
		})

	LimitDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandconfig_limit_denials_total",
			Help: "Writes denied by tier limits or missing features.",
		},
		[]string{"check"},
	)

	VersionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brandconfig_versions_created_total",
			Help: "Config versions written.",
		})

	ActivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brandconfig_activations_total",
			Help: "Active-version pointer changes.",
		})

	NotifyErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandconfig_notify_errors_total",
			Help: "Activation notifications that failed, by sink.",
		},
		[]string{"sink"},
	)

	CleanupPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandconfig_cleanup_purged_total",
			Help: "Rows removed by the cleanup sweep.",
		},
		[]string{"table"},
	)

	DeliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brandconfig_delivery_attempts_total",
			Help: "Activation webhook delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AuthFailuresTotal,
		RateLimitedTotal,
		LimitDenialsTotal,
		VersionsCreatedTotal,
		ActivationsTotal,
		NotifyErrorsTotal,
		CleanupPurgedTotal,
		DeliveryAttemptsTotal,
	)
}
