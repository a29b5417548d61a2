package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/imageview-bridge/internal/transform"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults: got %+v", cfg.Log)
	}
	if cfg.Cache.MemoryEntries != 128 {
		t.Errorf("MemoryEntries: got %d, want 128", cfg.Cache.MemoryEntries)
	}
	if want := filepath.Join(os.TempDir(), "imageview-bridge"); cfg.Cache.DiskDir != want {
		t.Errorf("DiskDir: got %s, want %s", cfg.Cache.DiskDir, want)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("Timeout: got %s, want 30s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxAttempts != 3 {
		t.Errorf("MaxAttempts: got %d, want 3", cfg.Fetch.MaxAttempts)
	}
	if cfg.Metrics.Exporter != "none" {
		t.Errorf("Exporter: got %s, want none", cfg.Metrics.Exporter)
	}
	if cfg.UnknownTransformPolicy() != transform.DropUnknown {
		t.Errorf("UnknownTransformPolicy: got %v, want drop", cfg.UnknownTransformPolicy())
	}
	if cfg.LogLevel() != zerolog.InfoLevel {
		t.Errorf("LogLevel: got %v, want info", cfg.LogLevel())
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(map[string]string{
		"IMAGEVIEW_BRIDGE_LOG_LEVEL":            "debug",
		"IMAGEVIEW_BRIDGE_LOG_FORMAT":           "console",
		"IMAGEVIEW_BRIDGE_DISK_CACHE_DIR":       dir,
		"IMAGEVIEW_BRIDGE_MEMORY_CACHE_ENTRIES": "16",
		"IMAGEVIEW_BRIDGE_HTTP_TIMEOUT":         "5s",
		"IMAGEVIEW_BRIDGE_FETCH_ATTEMPTS":       "1",
		"IMAGEVIEW_BRIDGE_UNKNOWN_TRANSFORMS":   "reject",
		"IMAGEVIEW_BRIDGE_METRICS_EXPORTER":     "stdout",
		"IMAGEVIEW_BRIDGE_METRICS_INTERVAL":     "10s",
	})
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	if cfg.LogLevel() != zerolog.DebugLevel {
		t.Errorf("LogLevel: got %v, want debug", cfg.LogLevel())
	}
	if cfg.Log.Format != "console" {
		t.Errorf("Format: got %s, want console", cfg.Log.Format)
	}
	if cfg.Cache.DiskDir != dir {
		t.Errorf("DiskDir: got %s, want %s", cfg.Cache.DiskDir, dir)
	}
	if cfg.Cache.MemoryEntries != 16 {
		t.Errorf("MemoryEntries: got %d, want 16", cfg.Cache.MemoryEntries)
	}
	if cfg.Fetch.Timeout != 5*time.Second {
		t.Errorf("Timeout: got %s, want 5s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxAttempts != 1 {
		t.Errorf("MaxAttempts: got %d, want 1", cfg.Fetch.MaxAttempts)
	}
	if cfg.UnknownTransformPolicy() != transform.RejectUnknown {
		t.Errorf("UnknownTransformPolicy: got %v, want reject", cfg.UnknownTransformPolicy())
	}
	if cfg.Metrics.Exporter != "stdout" || cfg.Metrics.Interval != 10*time.Second {
		t.Errorf("metrics: got %+v", cfg.Metrics)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"log level", "IMAGEVIEW_BRIDGE_LOG_LEVEL", "loud"},
		{"log format", "IMAGEVIEW_BRIDGE_LOG_FORMAT", "xml"},
		{"memory entries", "IMAGEVIEW_BRIDGE_MEMORY_CACHE_ENTRIES", "0"},
		{"memory entries type", "IMAGEVIEW_BRIDGE_MEMORY_CACHE_ENTRIES", "many"},
		{"timeout", "IMAGEVIEW_BRIDGE_HTTP_TIMEOUT", "-1s"},
		{"attempts", "IMAGEVIEW_BRIDGE_FETCH_ATTEMPTS", "0"},
		{"unknown transforms", "IMAGEVIEW_BRIDGE_UNKNOWN_TRANSFORMS", "ignore"},
		{"exporter", "IMAGEVIEW_BRIDGE_METRICS_EXPORTER", "prometheus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFrom(map[string]string{tt.key: tt.val}); err == nil {
				t.Errorf("%s=%s: expected error", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_ProcessEnvironment(t *testing.T) {
	t.Setenv("IMAGEVIEW_BRIDGE_MEMORY_CACHE_ENTRIES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Cache.MemoryEntries != 7 {
		t.Errorf("MemoryEntries: got %d, want 7", cfg.Cache.MemoryEntries)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Log:               LogConfig{Level: "info", Format: "json"},
		Cache:             CacheConfig{MemoryEntries: 0},
		Fetch:             FetchConfig{Timeout: 0, MaxAttempts: 1},
		Metrics:           MetricsConfig{Exporter: "none", Interval: time.Second},
		UnknownTransforms: "drop",
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"MEMORY_CACHE_ENTRIES", "HTTP_TIMEOUT"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}
