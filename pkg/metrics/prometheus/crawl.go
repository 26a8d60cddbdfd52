package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/nfsusage/pkg/metrics"
)

// crawlMetrics is the Prometheus implementation of metrics.CrawlMetrics.
type crawlMetrics struct {
	rpcTotal       *prometheus.CounterVec
	rpcDuration    *prometheus.HistogramVec
	dirsListed     *prometheus.CounterVec
	entriesSeen    *prometheus.CounterVec
	listErrors     *prometheus.CounterVec
	requestsQueued *prometheus.GaugeVec
}

// NewCrawlMetrics creates a Prometheus-backed CrawlMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewCrawlMetrics() metrics.CrawlMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopCrawlMetrics()
	}

	reg := metrics.GetRegistry()

	return &crawlMetrics{
		rpcTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsusage_rpc_requests_total",
				Help: "Total number of RPCs sent by program, procedure and status",
			},
			[]string{"program", "procedure", "status"},
		),
		rpcDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nfsusage_rpc_duration_milliseconds",
				Help: "Round trip time of RPCs in milliseconds",
				Buckets: []float64{
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms
					25,   // 25ms
					100,  // 100ms
					500,  // 500ms
					2500, // 2.5s
				},
			},
			[]string{"program", "procedure"},
		),
		dirsListed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsusage_dirs_listed_total",
				Help: "Total number of directories listed per connection",
			},
			[]string{"connection"},
		),
		entriesSeen: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsusage_entries_seen_total",
				Help: "Total number of directory entries seen by type",
			},
			[]string{"type"},
		),
		listErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nfsusage_list_errors_total",
				Help: "Total number of directories that could not be listed",
			},
			[]string{"kind"},
		),
		requestsQueued: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "nfsusage_requests_in_flight",
				Help: "Current number of requests queued on a connection",
			},
			[]string{"connection"},
		),
	}
}

func (m *crawlMetrics) ObserveRPC(program string, procedure string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.rpcTotal.WithLabelValues(program, procedure, status).Inc()
	m.rpcDuration.WithLabelValues(program, procedure).Observe(float64(elapsed) / float64(time.Millisecond))
}

func (m *crawlMetrics) DirListed(connection int) {
	m.dirsListed.WithLabelValues(strconv.Itoa(connection)).Inc()
}

func (m *crawlMetrics) EntriesSeen(kind string, n int) {
	m.entriesSeen.WithLabelValues(kind).Add(float64(n))
}

func (m *crawlMetrics) ListError(kind string) {
	m.listErrors.WithLabelValues(kind).Inc()
}

func (m *crawlMetrics) SetInFlight(connection int, n int) {
	m.requestsQueued.WithLabelValues(strconv.Itoa(connection)).Set(float64(n))
}
