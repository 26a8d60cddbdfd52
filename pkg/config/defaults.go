package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/nfsusage/pkg/crawler"
	"github.com/marmos91/nfsusage/pkg/fstab"
	"github.com/marmos91/nfsusage/pkg/metrics"
	"github.com/marmos91/nfsusage/pkg/nfs"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backends themselves
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMountDefaults(&cfg.Mount)
	applyCrawlerDefaults(&cfg.Crawler)
	applyCatalogDefaults(&cfg.Catalog)
	applyReportDefaults(&cfg.Report)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.Fstab == "" {
		cfg.Fstab = fstab.DefaultPath
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
	if cfg.Color == "" {
		cfg.Color = "auto"
	}
}

// applyMountDefaults fills in the credentials of the running process.
func applyMountDefaults(cfg *MountConfig) {
	if cfg.Timeout == 0 {
		cfg.Timeout = nfs.DefaultTimeout
	}
	if cfg.PortmapPort == 0 {
		cfg.PortmapPort = 111
	}
	if cfg.UID == nil {
		uid := uint32(os.Getuid())
		cfg.UID = &uid
	}
	if cfg.GID == nil {
		gid := uint32(os.Getgid())
		cfg.GID = &gid
	}
}

func applyCrawlerDefaults(cfg *CrawlerConfig) {
	if cfg.Connections == 0 {
		cfg.Connections = 4
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = crawler.DefaultMaxInFlight
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = crawler.DefaultRequestTimeout
	}
}

// applyCatalogDefaults sets catalog defaults. The badger database lives in
// the user's data directory unless configured otherwise.
func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join(getDataDir(), "catalog")
	}
}

// applyReportDefaults initializes every sink's option maps and gives file
// sinks a directory and format.
func applyReportDefaults(cfg *ReportConfig) {
	if cfg.Depth == 0 {
		cfg.Depth = 1
	}

	for i := range cfg.Sinks {
		sink := &cfg.Sinks[i]
		if sink.File == nil {
			sink.File = make(map[string]any)
		}
		if sink.S3 == nil {
			sink.S3 = make(map[string]any)
		}
		if sink.Type == "file" {
			if _, ok := sink.File["dir"]; !ok {
				sink.File["dir"] = filepath.Join(getDataDir(), "reports")
			}
			if _, ok := sink.File["format"]; !ok {
				sink.File["format"] = "json"
			}
		}
	}
}

// applyMetricsDefaults sets the metrics port.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = metrics.DefaultPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Mount: MountConfig{
			Timeout:         nfs.DefaultTimeout,
			LookupCacheSize: 4096,
		},
		Catalog: CatalogConfig{
			Enabled: true,
			Type:    "badger",
		},
		Report: ReportConfig{
			Depth: 1,
			Sinks: []SinkConfig{{Type: "file"}},
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}

	ApplyDefaults(cfg)

	// A sample configuration must not pin the credentials of whoever
	// generated it.
	cfg.Mount.UID = nil
	cfg.Mount.GID = nil

	return cfg
}
