// Package config handles bridge configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/ironsheep/imageview-bridge/internal/transform"
)

// Prefix is prepended to every variable name.
const Prefix = "IMAGEVIEW_BRIDGE_"

// Config holds all bridge configuration
type Config struct {
	Cache   CacheConfig
	Fetch   FetchConfig
	Log     LogConfig     `envPrefix:"LOG_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`

	// UnknownTransforms is "drop" or "reject".
	UnknownTransforms string `env:"UNKNOWN_TRANSFORMS" envDefault:"drop"`
}

// LogConfig controls the stderr logger
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// CacheConfig sizes the reference engine's caches
type CacheConfig struct {
	// DiskDir defaults to a directory under os.TempDir when empty.
	DiskDir       string `env:"DISK_CACHE_DIR"`
	MemoryEntries int    `env:"MEMORY_CACHE_ENTRIES" envDefault:"128"`
}

// FetchConfig controls network loads
type FetchConfig struct {
	Timeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	MaxAttempts uint          `env:"FETCH_ATTEMPTS" envDefault:"3"`
}

// MetricsConfig selects the lifecycle metrics exporter
type MetricsConfig struct {
	// Exporter is "none" or "stdout". Stdout output goes to stderr.
	Exporter string        `env:"EXPORTER" envDefault:"none"`
	Interval time.Duration `env:"INTERVAL" envDefault:"60s"`
}

// Load reads configuration from the process environment
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment. Keys include Prefix.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.Cache.DiskDir == "" {
		cfg.Cache.DiskDir = filepath.Join(os.TempDir(), "imageview-bridge")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the bridge cannot run with
func (c *Config) Validate() error {
	var errs []error

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT must be json or console, got %q", Prefix, c.Log.Format))
	}
	if c.Cache.MemoryEntries <= 0 {
		errs = append(errs, fmt.Errorf("%sMEMORY_CACHE_ENTRIES must be positive, got %d", Prefix, c.Cache.MemoryEntries))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%sHTTP_TIMEOUT must be positive, got %s", Prefix, c.Fetch.Timeout))
	}
	if c.Fetch.MaxAttempts == 0 {
		errs = append(errs, fmt.Errorf("%sFETCH_ATTEMPTS must be at least 1", Prefix))
	}
	if _, err := transform.ParseUnknownPolicy(c.UnknownTransforms); err != nil {
		errs = append(errs, fmt.Errorf("%sUNKNOWN_TRANSFORMS: %w", Prefix, err))
	}
	switch c.Metrics.Exporter {
	case "none", "stdout":
	default:
		errs = append(errs, fmt.Errorf("%sMETRICS_EXPORTER must be none or stdout, got %q", Prefix, c.Metrics.Exporter))
	}
	if c.Metrics.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%sMETRICS_INTERVAL must be positive, got %s", Prefix, c.Metrics.Interval))
	}

	return errors.Join(errs...)
}

// LogLevel returns the parsed log level. Call after Validate.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// UnknownTransformPolicy returns the parsed transform policy. Call after
// Validate.
func (c *Config) UnknownTransformPolicy() transform.UnknownPolicy {
	p, _ := transform.ParseUnknownPolicy(c.UnknownTransforms)
	return p
}
