package config

import (
	"github.com/marmos91/nfsusage/pkg/metrics"
	promMetrics "github.com/marmos91/nfsusage/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Crawl collects RPC and listing metrics (never nil, uses noop if disabled)
	Crawl metrics.CrawlMetrics

	// Report collects report upload metrics (never nil, uses noop if disabled)
	Report metrics.ReportMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Crawl:  metrics.NewNoopCrawlMetrics(),
			Report: metrics.NewNoopReportMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server: server,
		Crawl:  promMetrics.NewCrawlMetrics(),
		Report: promMetrics.NewReportMetrics(),
	}
}
