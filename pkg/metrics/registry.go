// Package metrics provides Prometheus metrics collection for nfsusage.
//
// All metrics are optional: if the registry is not initialized, constructors
// return no-op implementations with zero overhead, so the library and the
// command line tool run the same way with or without a metrics endpoint.
//
// Usage:
//
//	// Initialize the global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	crawlMetrics := prometheus.NewCrawlMetrics()
//
//	// Hand them to a mount
//	m, err := nfs.Open(ctx, url, nfs.WithMetrics(crawlMetrics))
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all nfsusage metrics.
	// Protected by registryOnce for write-once, read-many access.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// It must be called before creating any metrics instance. Subsequent calls
// are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
