// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_http_requests_total",
		Help: "HTTP requests by method, route template and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasks_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthRejections counts guard rejections: missing, invalid, unknown_user.
	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_auth_rejections_total",
		Help: "Requests rejected by the auth guard, by reason.",
	}, []string{"reason"})

	LoginFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tasks_login_failures_total",
		Help: "Login attempts that failed with invalid credentials.",
	})
)
