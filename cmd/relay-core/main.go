// Package main provides the relay-core binary entry point.
//
// relay-core runs the task orchestration engine as a standalone daemon:
// tasks are accepted over NATS request/reply, advanced through their
// approval and clarification checkpoints, and their event streams are
// republished to per-task NATS subjects. Prometheus metrics are served
// over HTTP.
//
// Usage:
//
//	relay-core serve                          # defaults, bolt store
//	relay-core serve --config relay.yaml
//	relay-core check-config --config relay.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relay-orchestration/relay-core/channel"
	"github.com/relay-orchestration/relay-core/core/config"
	"github.com/relay-orchestration/relay-core/core/observability"
	"github.com/relay-orchestration/relay-core/core/orchestrator"
	"github.com/relay-orchestration/relay-core/core/step"
	"github.com/relay-orchestration/relay-core/core/store"
	"github.com/relay-orchestration/relay-core/gateway"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "relay-core"
)

// cleanupInterval drives the periodic retention pass. Retention itself
// comes from the config; this only bounds how stale a terminal buffer
// can get past its window.
const cleanupInterval = 1 * time.Minute

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Human-in-the-loop task orchestration daemon",
		Long: `relay-core advances tasks through plan, approval, execution and
clarification phases, suspending at each checkpoint until a human (or the
sweeper) resolves it. State is persisted per advance; event streams are
replayable per task.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: store=%s nats=%v metrics=%s max_iterations=%d steps=%v\n",
				cfg.Store.Backend, cfg.NATS.Enabled, cfg.Metrics.Addr,
				cfg.Core.MaxIterations, ruleSteps(cfg))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func loadConfig(path string) (*config.ServerConfig, error) {
	if path == "" {
		cfg := config.DefaultServerConfig()
		return cfg, cfg.Validate()
	}
	return config.LoadFromFile(path)
}

func ruleSteps(cfg *config.ServerConfig) []string {
	steps := make([]string, 0, len(cfg.Core.RoutingRules)+1)
	for _, rule := range cfg.Core.RoutingRules {
		steps = append(steps, rule.Step)
	}
	return append(steps, cfg.Core.DefaultStep)
}

func serve(cfg *config.ServerConfig) error {
	logger := newLogger(cfg.Core.LogLevel)
	logger.Info("relay_core_starting", "version", Version, "store", cfg.Store.Backend)

	// Tracing.
	if cfg.Tracing.Enabled {
		shutdown, err := observability.InitTracer(appName, cfg.Tracing.Endpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err)
			}
		}()
		logger.Info("tracing_enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	// Store.
	var st store.Store
	switch cfg.Store.Backend {
	case "bolt":
		bs, err := store.NewBoltStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		st = bs
	default:
		st = store.NewMemoryStore()
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store_close_failed", "error", err)
		}
	}()

	// Channel with observability middleware.
	ch := channel.NewInMemoryChannel(cfg.Core.ObserverBufferSize, logger,
		channel.NewLoggingMiddleware(logger),
		observability.NewMetricsMiddleware(),
	)
	defer ch.Close()

	// Steps and orchestrator.
	registry := step.NewRegistry()
	step.RegisterBuiltins(registry)
	orch := orchestrator.New(&cfg.Core, st, ch, registry, nil, logger)

	stopCleanup := orch.StartCleanupLoop(cleanupInterval)
	defer stopCleanup()

	if cfg.Core.SweeperEnabled {
		stopSweeper := orchestrator.NewSweeper(orch).Start(cfg.Core.SweepInterval)
		defer stopSweeper()
		logger.Info("sweeper_enabled",
			"interval", cfg.Core.SweepInterval.String(),
			"approval_ttl", cfg.Core.ApprovalTTL.String(),
			"clarification_ttl", cfg.Core.ClarificationTTL.String())
	}

	// Metrics endpoint.
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_failed", "error", err)
		}
	}()
	logger.Info("metrics_listening", "addr", cfg.Metrics.Addr)

	// NATS gateway.
	if cfg.NATS.Enabled {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		gw := gateway.New(nc, orch, logger)
		if err := gw.Start(); err != nil {
			return fmt.Errorf("start gateway: %w", err)
		}
		defer gw.Close()
		logger.Info("gateway_listening", "url", cfg.NATS.URL)
	}

	logger.Info("relay_core_ready")

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Warn("metrics_shutdown_failed", "error", err)
	}

	logger.Info("relay_core_stopped")
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// slogLogger adapts log/slog to the per-package Logger interfaces.
type slogLogger struct {
	s *slog.Logger
}

func newLogger(level string) *slogLogger {
	l := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	return &slogLogger{s: slog.New(handler)}
}

func (l *slogLogger) Debug(msg string, keysAndValues ...any) { l.s.Debug(msg, keysAndValues...) }
func (l *slogLogger) Info(msg string, keysAndValues ...any)  { l.s.Info(msg, keysAndValues...) }
func (l *slogLogger) Warn(msg string, keysAndValues ...any)  { l.s.Warn(msg, keysAndValues...) }
func (l *slogLogger) Error(msg string, keysAndValues ...any) { l.s.Error(msg, keysAndValues...) }
