// Package metrics defines the Prometheus collectors collections report to.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors for collection operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// OperationsTotal counts operations by collection, operation and status.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is the latency of operations, scan included.
	OperationDuration *prometheus.HistogramVec
	// AffectedTotal counts documents inserted, updated or deleted.
	AffectedTotal *prometheus.CounterVec
	// Documents is the current number of documents per collection.
	Documents *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memdb_operations_total",
				Help: "Total number of collection operations",
			},
			[]string{"collection", "operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memdb_operation_duration_seconds",
				Help:    "Collection operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		AffectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memdb_documents_affected_total",
				Help: "Total number of documents changed by mutations",
			},
			[]string{"collection", "operation"},
		),
		Documents: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memdb_documents",
				Help: "Number of documents held by a collection",
			},
			[]string{"collection"},
		),
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(collection, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(collection, operation, status).Inc()
	m.OperationDuration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// Affected adds n to the documents changed by operation.
func (m *Metrics) Affected(collection, operation string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AffectedTotal.WithLabelValues(collection, operation).Add(float64(n))
}

// SetDocuments records the current size of a collection.
func (m *Metrics) SetDocuments(collection string, n int) {
	if m == nil {
		return
	}
	m.Documents.WithLabelValues(collection).Set(float64(n))
}
