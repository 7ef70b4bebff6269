// Command skybridge is the main entry point for the Skybridge widget server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/natfields/skybridge/internal/app"
	"github.com/natfields/skybridge/internal/config"
	"github.com/natfields/skybridge/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "skybridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "skybridge: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("skybridge starting",
		"version", app.Version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers. Metrics land in the Prometheus registry behind
	// /metrics; traces stay in-process unless an exporter is configured.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "skybridge",
		ServiceVersion: app.Version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Hot reload: log level changes apply without a restart. Anything else
	// in the diff is reported and ignored.
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.OriginsChanged {
			slog.Warn("allowed_origins changed on disk; a restart is required to apply it")
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Skybridge — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("Listen addr", cfg.Server.ListenAddr)
	printLine("State store", storeBackend(cfg))
	printLine("Catalog", endpointOr(cfg.Catalog.Endpoint))
	printLine("Stocks", endpointOr(cfg.Stocks.Endpoint))
	printLine("Sports", endpointOr(cfg.Sports.Endpoint))
	printLine("LLM", llmSummary(cfg))
	printLine("Semantic search", onOff(cfg.Catalog.Embedding.Enabled))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", kind, value)
}

func storeBackend(cfg *config.Config) string {
	if cfg.Store.PostgresDSN != "" {
		return "postgres"
	}
	return "in-memory"
}

func endpointOr(endpoint string) string {
	if endpoint == "" {
		return "(not configured)"
	}
	return endpoint
}

func llmSummary(cfg *config.Config) string {
	if cfg.LLM.APIKey == "" {
		return "(not configured)"
	}
	if cfg.LLM.Model != "" {
		return cfg.LLM.Model
	}
	return "configured"
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
