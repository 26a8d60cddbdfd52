package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete nfsusage configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (NFSUSAGE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Catalog and report sinks follow the store configuration pattern: a Type
// field selects the implementation and only the matching type-specific map
// is decoded by the factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Mount holds the defaults for every NFS mount
	Mount MountConfig `mapstructure:"mount" yaml:"mount"`

	// Crawler tunes parallel crawls
	Crawler CrawlerConfig `mapstructure:"crawler" yaml:"crawler"`

	// Fstab is the file local paths are translated through
	Fstab string `mapstructure:"fstab" yaml:"fstab" validate:"required"`

	// Catalog stores crawl runs
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Report controls usage aggregation and where reports go
	Report ReportConfig `mapstructure:"report" yaml:"report"`

	// Metrics exposes Prometheus metrics while a crawl runs
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`

	// Color selects coloured level tags
	// Valid values: auto (only on terminals), always, never
	Color string `mapstructure:"color" yaml:"color" validate:"required,oneof=auto always never"`
}

// MountConfig contains the settings applied to every mount. Options given
// in an nfs:// URL override them.
type MountConfig struct {
	// Timeout bounds every blocking RPC
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`

	// UID and GID are the AUTH_UNIX credentials
	// Default: the uid and gid of the running process
	UID *uint32 `mapstructure:"uid" yaml:"uid,omitempty"`
	GID *uint32 `mapstructure:"gid" yaml:"gid,omitempty"`

	// MachineName is sent in AUTH_UNIX credentials (default: hostname)
	MachineName string `mapstructure:"machine_name" yaml:"machine_name,omitempty"`

	// PortmapPort is where GETPORT queries go
	PortmapPort int `mapstructure:"portmap_port" yaml:"portmap_port" validate:"gt=0,lte=65535"`

	// LookupCacheSize is the number of path to file handle translations
	// kept per mount
	LookupCacheSize int `mapstructure:"lookup_cache_size" yaml:"lookup_cache_size" validate:"gte=0"`
}

// CrawlerConfig tunes the parallel crawler.
type CrawlerConfig struct {
	// Connections is the number of mounts listing in parallel
	Connections int `mapstructure:"connections" yaml:"connections" validate:"gte=1,lte=256"`

	// MaxInFlight bounds the directory opens queued per connection
	MaxInFlight int `mapstructure:"max_in_flight" yaml:"max_in_flight" validate:"gte=1"`

	// RequestTimeout abandons a directory listing that takes longer
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`

	// RateLimit caps directory opens per second, 0 means unlimited
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
}

// CatalogConfig specifies the catalog store.
type CatalogConfig struct {
	// Enabled records every usage run in the catalog
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Type specifies which catalog implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// ReportConfig controls usage reports.
type ReportConfig struct {
	// Depth is how many directory levels below the root get their own row
	Depth int `mapstructure:"depth" yaml:"depth" validate:"gte=0"`

	// Sinks lists where reports are written
	Sinks []SinkConfig `mapstructure:"sinks" yaml:"sinks" validate:"dive"`
}

// SinkConfig defines one report destination.
type SinkConfig struct {
	// Type specifies the sink implementation
	// Valid values: file, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=file s3"`

	// File contains file-specific configuration (path, format)
	File map[string]any `mapstructure:"file" yaml:"file,omitempty"`

	// S3 contains S3-specific configuration
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port /metrics is served on
	Port int `mapstructure:"port" yaml:"port" validate:"gt=0,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NFSUSAGE_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath looks for config.yaml in the default directory; a
// missing file there is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so environment variables work without a
// config file mentioning the key.
var envKeys = []string{
	"logging.level",
	"logging.output",
	"logging.color",
	"mount.timeout",
	"mount.uid",
	"mount.gid",
	"mount.machine_name",
	"mount.portmap_port",
	"crawler.connections",
	"crawler.max_in_flight",
	"crawler.request_timeout",
	"crawler.rate_limit",
	"fstab",
	"catalog.enabled",
	"catalog.type",
	"report.depth",
	"metrics.enabled",
	"metrics.port",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: NFSUSAGE_CRAWLER_CONNECTIONS=8
	v.SetEnvPrefix("NFSUSAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/nfsusage/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist yet falls back to defaults
		if configPath != "" && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nfsusage")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "nfsusage")
}

// getDataDir returns where persistent data such as the catalog lives.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "nfsusage")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "nfsusage")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// GetConfigDir returns the directory holding the configuration file.
func GetConfigDir() string {
	return getConfigDir()
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
