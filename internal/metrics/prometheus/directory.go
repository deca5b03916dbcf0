// Package prometheus implements metrics.DirectoryMetrics with Prometheus
// collectors.
package prometheus

import (
	"time"

	"github.com/isometry/ldaptree/internal/ldap"
	"github.com/isometry/ldaptree/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type directoryMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	changesTotal      *prometheus.CounterVec
}

// NewDirectoryMetrics creates a Prometheus-backed DirectoryMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewDirectoryMetrics() metrics.DirectoryMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDirectoryMetrics()
	}
	return newDirectoryMetrics(metrics.GetRegistry())
}

func newDirectoryMetrics(reg prometheus.Registerer) *directoryMetrics {
	return &directoryMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldaptree_directory_operations_total",
				Help: "Total number of directory requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ldaptree_directory_operation_duration_seconds",
				Help: "Duration of directory requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.5,   // 500ms
					1,     // 1s
					5,     // 5s
				},
			},
			[]string{"operation"},
		),
		changesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldaptree_attribute_changes_total",
				Help: "Total number of attribute changes applied, by bucket",
			},
			[]string{"bucket"},
		),
	}
}

func (m *directoryMetrics) RecordOperation(op string, duration time.Duration, err error) {
	m.operationsTotal.WithLabelValues(op, status(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *directoryMetrics) RecordChanges(bucket string, count int) {
	m.changesTotal.WithLabelValues(bucket).Add(float64(count))
}

// status maps an error to a low-cardinality label.
func status(err error) string {
	if err == nil {
		return "success"
	}
	return string(ldap.GetErrorCategory(err))
}
