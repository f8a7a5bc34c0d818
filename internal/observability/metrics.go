package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Capture kinds
const (
	KindMetadata      = "metadata"
	KindRepublication = "republication"
	KindUnpublished   = "unpublished"
	KindLink          = "link"
)

// Capture outcomes
const (
	OutcomeCaptured = "captured"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	Registry *prometheus.Registry

	// Capture metrics
	CapturesTotal   *prometheus.CounterVec
	CaptureDuration prometheus.Histogram

	// Filesystem metrics
	FilesystemErrors *prometheus.CounterVec

	// Discovery metrics
	UnpublishedScansFound prometheus.Counter
}

// NewMetrics creates the metrics on a dedicated registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		CapturesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scancapture_captures_total",
			Help: "Capture attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scancapture_capture_duration_seconds",
			Help:    "Duration of the shutdown capture sequence in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		FilesystemErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scancapture_filesystem_errors_total",
			Help: "Filesystem operations that failed, by operation",
		}, []string{"op"}),
		UnpublishedScansFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "scancapture_unpublished_scans_found_total",
			Help: "Unpublished build scans discovered on disk",
		}),
	}
}

// Capture counts one capture attempt
func (m *Metrics) Capture(kind, outcome string) {
	m.CapturesTotal.WithLabelValues(kind, outcome).Inc()
}

// FilesystemError counts one failed filesystem operation
func (m *Metrics) FilesystemError(op string) {
	m.FilesystemErrors.WithLabelValues(op).Inc()
}

// WriteTextfile exports the registry in the Prometheus text format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
