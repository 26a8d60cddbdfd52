package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return GetDefaultConfig()
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for invalid log level")
	}
	if !strings.Contains(err.Error(), "Level") {
		t.Errorf("Expected error to mention Level, got: %v", err)
	}
}

func TestValidate_InvalidColor(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Color = "sometimes"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for invalid color mode")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"debug", "Info", "WARN", "error"} {
		cfg := &Config{Logging: LoggingConfig{Level: level}}
		ApplyDefaults(cfg)

		if err := Validate(cfg); err != nil {
			t.Errorf("Level %q should be accepted: %v", level, err)
		}
		if cfg.Logging.Level != strings.ToUpper(level) {
			t.Errorf("Expected %q, got %q", strings.ToUpper(level), cfg.Logging.Level)
		}
	}
}

func TestValidate_InvalidConnections(t *testing.T) {
	cfg := validConfig()
	cfg.Crawler.Connections = 0

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for zero connections")
	}

	cfg.Crawler.Connections = 1000
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for too many connections")
	}
}

func TestValidate_NegativeTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Mount.Timeout = -time.Second

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for negative timeout")
	}
}

func TestValidate_FractionalRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Crawler.RateLimit = 0.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for a rate limit below 1")
	}
	if !strings.Contains(err.Error(), "rate_limit") {
		t.Errorf("Expected error to mention rate_limit, got: %v", err)
	}
}

func TestValidate_InvalidCatalogType(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for invalid catalog type")
	}
}

func TestValidate_BadgerNeedsPath(t *testing.T) {
	cfg := validConfig()
	cfg.Catalog.Badger = map[string]any{}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for badger catalog without db_path")
	}

	cfg.Catalog.Badger["in_memory"] = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("In-memory badger catalog needs no path: %v", err)
	}

	cfg.Catalog.Badger = map[string]any{}
	cfg.Catalog.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("Disabled catalog should not be checked: %v", err)
	}
}

func TestValidate_InvalidSinkType(t *testing.T) {
	cfg := validConfig()
	cfg.Report.Sinks = append(cfg.Report.Sinks, SinkConfig{Type: "ftp"})

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for invalid sink type")
	}
	if !strings.Contains(err.Error(), "Sinks[1]") {
		t.Errorf("Expected error to point at Sinks[1], got: %v", err)
	}
}

func TestValidate_InvalidSinkFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Report.Sinks[0].File["format"] = "csv"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for unknown report format")
	}
}

func TestValidate_S3SinkNeedsBucket(t *testing.T) {
	cfg := validConfig()
	cfg.Report.Sinks = []SinkConfig{{Type: "s3", S3: map[string]any{"region": "us-east-1"}}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for s3 sink without bucket")
	}
	if !strings.Contains(err.Error(), "bucket") {
		t.Errorf("Expected error to mention bucket, got: %v", err)
	}
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for out of range metrics port")
	}
}
