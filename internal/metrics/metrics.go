package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotagate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quotagate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Admission Metrics
	AdmissionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotagate_admission_decisions_total",
			Help: "Total number of admission decisions",
		},
		[]string{"quota_type", "tier", "outcome"},
	)

	QuotaDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotagate_quota_denials_total",
			Help: "Total number of requests denied for exhausted quota",
		},
		[]string{"quota_type", "tier"},
	)

	// Ledger Metrics
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotagate_ledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"store", "operation", "status"},
	)

	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quotagate_ledger_operation_duration_seconds",
			Help:    "Ledger operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

	// Event Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotagate_events_published_total",
			Help: "Total number of usage events published",
		},
		[]string{"routing_key", "status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotagate_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordAdmission records an admission decision outcome
// (allowed, denied, error)
func RecordAdmission(quotaType, tier, outcome string) {
	AdmissionDecisionsTotal.WithLabelValues(quotaType, tier, outcome).Inc()
}

// RecordDenial records a quota-exhausted denial
func RecordDenial(quotaType, tier string) {
	QuotaDenialsTotal.WithLabelValues(quotaType, tier).Inc()
}

// RecordLedgerOperation records a ledger operation
func RecordLedgerOperation(store, operation, status string, duration float64) {
	LedgerOperationsTotal.WithLabelValues(store, operation, status).Inc()
	LedgerOperationDuration.WithLabelValues(store, operation).Observe(duration)
}

// RecordEventPublished records a usage event publish attempt
func RecordEventPublished(routingKey, status string) {
	EventsPublishedTotal.WithLabelValues(routingKey, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
