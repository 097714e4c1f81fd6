// Package metrics exposes Prometheus counters for the lifecycle API.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aft_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aft_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aft_actions_total",
			Help: "Lifecycle actions by action and audit outcome",
		},
		[]string{"action", "outcome"},
	)

	requestsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aft_requests_created_total",
			Help: "Total number of requests created",
		},
	)

	requestsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aft_requests_by_status",
			Help: "Number of requests by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(actionsTotal)
	prometheus.MustRegister(requestsCreatedTotal)
	prometheus.MustRegister(requestsByStatus)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest records one handled HTTP request.
func RecordAPIRequest(method, path string, status int, duration float64) {
	apiRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordAction records one orchestrator invocation with its audit outcome.
func RecordAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordRequestCreated records one request creation.
func RecordRequestCreated() {
	requestsCreatedTotal.Inc()
}

// Counter is the shape of CountRequestsByStatus in the repo.
type Counter interface {
	CountRequestsByStatus(ctx context.Context) (map[string]int, error)
}

// UpdateRequestsByStatus refreshes the per-status gauge from the store.
// Statuses absent from the count are dropped so the gauge never goes stale.
func UpdateRequestsByStatus(ctx context.Context, c Counter) error {
	counts, err := c.CountRequestsByStatus(ctx)
	if err != nil {
		return err
	}
	requestsByStatus.Reset()
	for status, n := range counts {
		requestsByStatus.WithLabelValues(status).Set(float64(n))
	}
	return nil
}
