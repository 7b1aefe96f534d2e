// Package metrics exposes the service's Prometheus collectors on a private
// registry so the /metrics endpoint carries only what this process emits.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector below.
var Registry = prometheus.NewRegistry()

var (
	PaymentsCreated = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "mailpay_payments_created_total",
		Help: "Payments created.",
	})
	PaymentExecutions = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "mailpay_payment_executions_total",
		Help: "Payment execution attempts by outcome.",
	}, []string{"outcome"})
	EscrowsCreated = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "mailpay_escrows_created_total",
		Help: "Escrows created by variant.",
	}, []string{"variant"})
	EscrowFinalizations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "mailpay_escrow_finalizations_total",
		Help: "Escrow finalizations by outcome.",
	}, []string{"outcome"})
	VestingClaims = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "mailpay_vesting_claims_total",
		Help: "Successful vested-amount claims.",
	})
	LendingOps = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "mailpay_lending_operations_total",
		Help: "Lending pool operations by type.",
	}, []string{"operation"})

	httpRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "mailpay_http_requests_total",
		Help: "HTTP requests by method, route and status class.",
	}, []string{"method", "route", "status"})
	httpDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailpay_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	httpRequests.WithLabelValues(method, route, class).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
