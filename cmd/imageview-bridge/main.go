package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/imageview-bridge/internal/config"
	"github.com/ironsheep/imageview-bridge/internal/engine"
	"github.com/ironsheep/imageview-bridge/internal/lifecycle"
	"github.com/ironsheep/imageview-bridge/internal/server"
	"github.com/ironsheep/imageview-bridge/internal/telemetry"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("imageview-bridge %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "imageview-bridge: %v\n", err)
		os.Exit(2)
	}

	// Logs go to stderr; stdout is the protocol stream
	log := newLogger(cfg, os.Stderr)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bridge stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	metrics, err := telemetry.New(ctx, cfg.Metrics.Exporter, os.Stderr, cfg.Metrics.Interval, Version)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("failed to flush metrics")
		}
	}()

	eng, err := engine.NewLocal(
		engine.WithLogger(log),
		engine.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		engine.WithDiskCacheDir(cfg.Cache.DiskDir),
		engine.WithMemoryCacheEntries(cfg.Cache.MemoryEntries),
		engine.WithMaxFetchAttempts(cfg.Fetch.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	coord, err := lifecycle.NewCoordinator(eng,
		lifecycle.WithLogger(log),
		lifecycle.WithMeter(metrics.Meter()),
		lifecycle.WithUnknownTransformPolicy(cfg.UnknownTransformPolicy()),
	)
	if err != nil {
		return err
	}

	log.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("disk_cache_dir", cfg.Cache.DiskDir).
		Int("memory_cache_entries", cfg.Cache.MemoryEntries).
		Msg("imageview-bridge starting")

	srv := server.New(coord, eng, server.WithLogger(log), server.WithVersion(Version))
	return srv.Run()
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.Log.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(cfg.LogLevel()).With().Timestamp().Logger()
}

func printHelp() {
	fmt.Println("imageview-bridge - declarative image view bridge over JSON-RPC")
	fmt.Println()
	fmt.Println("Usage: imageview-bridge [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  IMAGEVIEW_BRIDGE_LOG_LEVEL=info            trace|debug|info|warn|error")
	fmt.Println("  IMAGEVIEW_BRIDGE_LOG_FORMAT=json           json|console")
	fmt.Println("  IMAGEVIEW_BRIDGE_DISK_CACHE_DIR=<tmp>/imageview-bridge")
	fmt.Println("  IMAGEVIEW_BRIDGE_MEMORY_CACHE_ENTRIES=128")
	fmt.Println("  IMAGEVIEW_BRIDGE_HTTP_TIMEOUT=30s")
	fmt.Println("  IMAGEVIEW_BRIDGE_FETCH_ATTEMPTS=3")
	fmt.Println("  IMAGEVIEW_BRIDGE_UNKNOWN_TRANSFORMS=drop   drop|reject")
	fmt.Println("  IMAGEVIEW_BRIDGE_METRICS_EXPORTER=none     none|stdout (written to stderr)")
	fmt.Println("  IMAGEVIEW_BRIDGE_METRICS_INTERVAL=60s")
	fmt.Println()
	fmt.Println("Requests are read from stdin, one JSON-RPC message per line;")
	fmt.Println("responses and view notifications are written to stdout.")
}
