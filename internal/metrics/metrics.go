// Package metrics exposes Prometheus instrumentation for pagedb
// operations, registered with promauto against a caller-supplied
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector pagedb registers.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PagesInUse        prometheus.Gauge
	RowsMatchedTotal  *prometheus.CounterVec
}

// New creates and registers pagedb's collectors against reg. Passing a
// fresh *prometheus.Registry keeps tests and multiple open handles from
// colliding on the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagedb_operations_total",
				Help: "Total number of pagedb operations by kind and outcome.",
			},
			[]string{"op", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagedb_operation_duration_seconds",
				Help:    "Duration of pagedb operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		PagesInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagedb_pages_in_use",
				Help: "Number of pages currently marked in use by the allocator.",
			},
		),
		RowsMatchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagedb_rows_matched_total",
				Help: "Total number of rows matched by select/update/delete.",
			},
			[]string{"op"},
		),
	}
}

// Observe records the outcome and duration of one operation.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
