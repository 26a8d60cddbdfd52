package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# nfsusage Configuration File",
		"logging:",
		"mount:",
		"crawler:",
		"catalog:",
		"report:",
		"metrics:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}
	if err := os.WriteFile(configPath, []byte("# Modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path, got different: %s vs %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# nfsusage Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_CreatesParents(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "nested", "nfsusage.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("Config file was not created at %s: %v", configPath, err)
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}

	content, _ := os.ReadFile(configPath)
	if string(content) != "existing" {
		t.Error("Existing file must not be touched without force")
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	defaults := GetDefaultConfig()
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected INFO log level in generated config, got %q", cfg.Logging.Level)
	}
	if cfg.Mount.Timeout != defaults.Mount.Timeout {
		t.Errorf("Expected timeout %v, got %v", defaults.Mount.Timeout, cfg.Mount.Timeout)
	}
	if cfg.Crawler.Connections != defaults.Crawler.Connections {
		t.Errorf("Expected %d connections, got %d", defaults.Crawler.Connections, cfg.Crawler.Connections)
	}
	if !cfg.Catalog.Enabled || cfg.Catalog.Type != "badger" {
		t.Errorf("Unexpected catalog section %+v", cfg.Catalog)
	}
	if len(cfg.Report.Sinks) != 1 || cfg.Report.Sinks[0].File["format"] != "json" {
		t.Errorf("Unexpected report sinks %+v", cfg.Report.Sinks)
	}
	if cfg.Mount.UID == nil || *cfg.Mount.UID != uint32(os.Getuid()) {
		t.Errorf("Credentials should come from the loading process, got %v", cfg.Mount.UID)
	}
}
