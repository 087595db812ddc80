// Package metrics provides Prometheus metrics for the value tracker service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoresOpen tracks the number of stores currently held by the registry
	StoresOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "valuetracker",
			Subsystem: "registry",
			Name:      "stores_open",
			Help:      "Number of extension stores currently open",
		},
	)

	// StoreOpensTotal tracks store open attempts by status
	StoreOpensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valuetracker",
			Subsystem: "registry",
			Name:      "store_opens_total",
			Help:      "Total number of store open attempts by status",
		},
		[]string{"status"},
	)

	// StoreOperationsTotal tracks store operations by operation name and status
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valuetracker",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// StoreOperationDuration tracks store operation duration in seconds
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "valuetracker",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)
)

// ObserveOperation records one store operation outcome.
func ObserveOperation(operation string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(seconds)
}
