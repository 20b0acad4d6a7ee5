// Package metrics provides Prometheus metrics for the specializer service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SpecializationsTotal counts specializations by provider and result.
	SpecializationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "specializations_total",
			Help:      "Total number of workflow specializations",
		},
		[]string{"provider", "result"}, // result: success, integrity_error, error
	)

	// SpecializationDuration tracks the pipeline duration.
	SpecializationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "specialization_duration_seconds",
			Help:      "Workflow specialization duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"provider"},
	)

	// ValidationWarnings counts generated workflows that failed the structural check.
	ValidationWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "validation_warnings_total",
			Help:      "Generated workflows that failed structural validation",
		},
	)

	// TemplateReloads counts template reloads by result.
	TemplateReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "template_reloads_total",
			Help:      "Total number of template reloads",
		},
		[]string{"result"},
	)

	// DeploymentsTotal counts hand-offs to the orchestration engine.
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "deployments_total",
			Help:      "Total number of workflow deployments",
		},
		[]string{"result"},
	)

	// FlowStoreOperations counts flowstore operations.
	FlowStoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "flowstore_operations_total",
			Help:      "Total number of flowstore operations",
		},
		[]string{"operation", "result"}, // operation: create, update, get, delete, list
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentatlab",
			Subsystem: "specializer",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
