package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/nfsusage/pkg/metrics"
)

type reportMetrics struct {
	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadBytes    *prometheus.CounterVec
}

// NewReportMetrics creates a Prometheus-backed ReportMetrics instance.
func NewReportMetrics() metrics.ReportMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopReportMetrics()
	}

	reg := metrics.GetRegistry()

	return &reportMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsusage_report_uploads_total",
				Help: "Total number of reports written by sink and status",
			},
			[]string{"sink", "status"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nfsusage_report_upload_duration_seconds",
				Help:    "Duration of report writes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		),
		uploadBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsusage_report_bytes_total",
				Help: "Total bytes of reports written",
			},
			[]string{"sink"},
		),
	}
}

func (m *reportMetrics) ObserveUpload(sink string, bytes int, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.uploadsTotal.WithLabelValues(sink, status).Inc()
	m.uploadDuration.WithLabelValues(sink).Observe(elapsed.Seconds())
	if err == nil {
		m.uploadBytes.WithLabelValues(sink).Add(float64(bytes))
	}
}
