package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "debug"

crawler:
  connections: 8
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("Expected default output 'stderr', got %q", cfg.Logging.Output)
	}
	if cfg.Crawler.Connections != 8 {
		t.Errorf("Expected 8 connections, got %d", cfg.Crawler.Connections)
	}
	if cfg.Crawler.MaxInFlight != 16 {
		t.Errorf("Expected default max_in_flight 16, got %d", cfg.Crawler.MaxInFlight)
	}
	if cfg.Fstab != "/etc/fstab" {
		t.Errorf("Expected default fstab '/etc/fstab', got %q", cfg.Fstab)
	}
	if cfg.Metrics.Port != 9464 {
		t.Errorf("Expected default metrics port 9464, got %d", cfg.Metrics.Port)
	}
}

func TestLoad_Durations(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
mount:
  timeout: 90s
  uid: 1000
  gid: 100
crawler:
  request_timeout: 2m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Mount.Timeout != 90*time.Second {
		t.Errorf("Expected timeout 90s, got %v", cfg.Mount.Timeout)
	}
	if cfg.Crawler.RequestTimeout != 2*time.Minute {
		t.Errorf("Expected request_timeout 2m, got %v", cfg.Crawler.RequestTimeout)
	}
	if cfg.Mount.UID == nil || *cfg.Mount.UID != 1000 {
		t.Errorf("Expected uid 1000, got %v", cfg.Mount.UID)
	}
	if cfg.Mount.GID == nil || *cfg.Mount.GID != 100 {
		t.Errorf("Expected gid 100, got %v", cfg.Mount.GID)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path so the user's own config is never read
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Catalog.Type != "badger" {
		t.Errorf("Expected default catalog type 'badger', got %q", cfg.Catalog.Type)
	}
	if cfg.Mount.UID == nil || *cfg.Mount.UID != uint32(os.Getuid()) {
		t.Errorf("Expected uid of the running process, got %v", cfg.Mount.UID)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
catalog:
  type: sqlite
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown catalog type, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
fstab = "/etc/fstab.nfs"

[logging]
level = "WARN"
color = "never"

[report]
depth = 3

[[report.sinks]]
type = "s3"

[report.sinks.s3]
region = "eu-west-1"
bucket = "usage"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Fstab != "/etc/fstab.nfs" {
		t.Errorf("Expected fstab '/etc/fstab.nfs', got %q", cfg.Fstab)
	}
	if cfg.Report.Depth != 3 {
		t.Errorf("Expected depth 3, got %d", cfg.Report.Depth)
	}
	if len(cfg.Report.Sinks) != 1 || cfg.Report.Sinks[0].S3["bucket"] != "usage" {
		t.Errorf("Expected one s3 sink for bucket 'usage', got %+v", cfg.Report.Sinks)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("NFSUSAGE_LOGGING_LEVEL", "ERROR")
	t.Setenv("NFSUSAGE_CRAWLER_CONNECTIONS", "12")
	t.Setenv("NFSUSAGE_MOUNT_TIMEOUT", "45s")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
crawler:
  connections: 2
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Crawler.Connections != 12 {
		t.Errorf("Expected 12 connections from env var, got %d", cfg.Crawler.Connections)
	}
	if cfg.Mount.Timeout != 45*time.Second {
		t.Errorf("Expected timeout 45s from env var, got %v", cfg.Mount.Timeout)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in a fresh directory")
	}

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	path := GetDefaultConfigPath()
	if path != filepath.Join(xdg, "nfsusage", "config.yaml") {
		t.Errorf("Unexpected default config path %q", path)
	}
}

func TestGetConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/someone")

	dir := GetConfigDir()
	if dir != filepath.Join("/home/someone", ".config", "nfsusage") {
		t.Errorf("Unexpected config dir %q", dir)
	}
}
