package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cesargomez89/keepoffline/internal/constants"
)

func validConfig() Config {
	return Config{
		Port:                "8080",
		DBPath:              "test.db",
		DownloadsDir:        "/tmp/downloads",
		MetadataURL:         "http://localhost:8096",
		LogLevel:            "info",
		LogFormat:           "text",
		StatusInterval:      time.Second,
		UpdateInterval:      5 * time.Second,
		ReplanInterval:      5 * time.Minute,
		RetryBackoff:        10 * time.Second,
		CacheTTL:            time.Minute,
		CacheSize:           16,
		MaxSupportTransfers: 3,
		MaxVideoTransfers:   1,
	}
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}

	if cfg.DBPath != constants.DefaultDBPath {
		t.Errorf("Expected DBPath to be %s, got %s", constants.DefaultDBPath, cfg.DBPath)
	}

	if cfg.MetadataURL != constants.DefaultMetadataURL {
		t.Errorf("Expected MetadataURL to be %s, got %s", constants.DefaultMetadataURL, cfg.MetadataURL)
	}

	if cfg.StatusInterval != constants.DefaultStatusInterval {
		t.Errorf("Expected StatusInterval to be %v, got %v", constants.DefaultStatusInterval, cfg.StatusInterval)
	}

	if cfg.MaxVideoTransfers != constants.DefaultVideoTransfers {
		t.Errorf("Expected MaxVideoTransfers to be %d, got %d", constants.DefaultVideoTransfers, cfg.MaxVideoTransfers)
	}

	if cfg.DownloadsDir == "" {
		t.Error("Expected DownloadsDir to not be empty")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KEEPOFFLINE_PORT", "9090")
	t.Setenv("KEEPOFFLINE_DB_PATH", "/tmp/test.db")
	t.Setenv("KEEPOFFLINE_STATUS_INTERVAL", "250ms")
	t.Setenv("KEEPOFFLINE_MAX_SUPPORT_TRANSFERS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DBPath to be /tmp/test.db, got %s", cfg.DBPath)
	}

	if cfg.StatusInterval != 250*time.Millisecond {
		t.Errorf("Expected StatusInterval to be 250ms, got %v", cfg.StatusInterval)
	}

	if cfg.MaxSupportTransfers != 5 {
		t.Errorf("Expected MaxSupportTransfers to be 5, got %d", cfg.MaxSupportTransfers)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := "port: \"7070\"\nupdate_interval: 2s\nconnectivity_probe: \"1.1.1.1:53\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Expected Port to be 7070, got %s", cfg.Port)
	}
	if cfg.UpdateInterval != 2*time.Second {
		t.Errorf("Expected UpdateInterval to be 2s, got %v", cfg.UpdateInterval)
	}
	if cfg.ConnectivityProbe != "1.1.1.1:53" {
		t.Errorf("Expected ConnectivityProbe to be 1.1.1.1:53, got %s", cfg.ConnectivityProbe)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"invalid port - not a number", func(c *Config) { c.Port = "abc" }, true},
		{"invalid port - out of range", func(c *Config) { c.Port = "99999" }, true},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db path", func(c *Config) { c.DBPath = "" }, true},
		{"empty downloads dir", func(c *Config) { c.DownloadsDir = "" }, true},
		{"relative metadata url", func(c *Config) { c.MetadataURL = "localhost" }, true},
		{"bad probe", func(c *Config) { c.ConnectivityProbe = "no-port" }, true},
		{"zero status interval", func(c *Config) { c.StatusInterval = 0 }, true},
		{"zero video transfers", func(c *Config) { c.MaxVideoTransfers = 0 }, true},
		{"two video transfers", func(c *Config) { c.MaxVideoTransfers = 2 }, true},
		{"zero support transfers", func(c *Config) { c.MaxSupportTransfers = 0 }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "invalid" }, true},
		{"invalid log format", func(c *Config) { c.LogFormat = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
