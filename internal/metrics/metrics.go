// Package metrics provides Prometheus instrumentation for the moderation
// service. It exposes counters for request and decision throughput, error
// counters per classifier backend, and a latency histogram for the full
// moderation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts moderation requests, labeled by outcome:
	// "ok", "client_error", "server_error", "rate_limited".
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_requests_total",
		Help: "Total number of moderation requests processed",
	}, []string{"outcome"})

	// DecisionsTotal counts fused decisions by terminal reason.
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_decisions_total",
		Help: "Total number of fused decisions by reason",
	}, []string{"reason"})

	// BlockedTotal counts blocked messages.
	BlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_blocked_total",
		Help: "Total number of blocked messages",
	})

	// ClassifierErrorsTotal counts failed remote classifier calls, labeled
	// by backend: "openai" or "custom".
	ClassifierErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_classifier_errors_total",
		Help: "Total number of failed remote classifier calls",
	}, []string{"classifier"})

	// NotifyFailuresTotal counts notification deliveries that failed.
	NotifyFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_notify_failures_total",
		Help: "Total number of failed webhook notification deliveries",
	})

	// RequestDuration records end-to-end moderation latency in seconds,
	// dominated by the remote classifier calls.
	RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderation_request_duration_seconds",
		Help:    "End-to-end moderation request latency in seconds",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		DecisionsTotal,
		BlockedTotal,
		ClassifierErrorsTotal,
		NotifyFailuresTotal,
		RequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
