package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/k8s-ai-assistant/expert-engine/internal/api"
	"github.com/k8s-ai-assistant/expert-engine/internal/config"
	"github.com/k8s-ai-assistant/expert-engine/internal/metrics"
	"github.com/k8s-ai-assistant/expert-engine/internal/scanner"
	"github.com/k8s-ai-assistant/expert-engine/internal/services"
)

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "gRPC listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveMetrics, "metrics-address", "", "Prometheus listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveAddress string
	serveMetrics string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC service and the learning scanner",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg, logger := rt.cfg, rt.logger
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	if serveMetrics != "" {
		cfg.Server.MetricsAddress = serveMetrics
	}
	logger.Info("starting expert-engine",
		slog.String("address", cfg.Server.Address),
		slog.String("automation", cfg.Automation.Level),
		slog.String("history_backend", cfg.History.Backend),
		slog.String("actuator", cfg.Actuator.Mode),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	server, err := api.NewServer(cfg.Server, services.NewGRPCService(rt.expert, logger), logger)
	if err != nil {
		return err
	}

	stopScanner := startLearning(ctx, rt)
	defer stopScanner()

	stopReload := watchConfig(ctx, rt)
	defer stopReload()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("expert-engine stopped", slog.Duration("analysis_p95", rt.expert.LatencyP95()))
	return nil
}

// startLearning runs the scanner over the configured log paths, either on a
// ticker or through filesystem notifications. The returned func stops it.
func startLearning(ctx context.Context, rt *runtime) func() {
	cfg, logger := rt.cfg.Scanner, rt.logger
	if len(cfg.WatchPaths) == 0 {
		logger.Info("learning scanner idle: no watch paths configured")
		return func() {}
	}

	if rt.collector != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := rt.scanner.Run(ctx, cfg.Interval, rt.collector.Collect); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("learning scanner stopped", slog.Any("error", err))
			}
		}()
		logger.Info("learning scanner polling", slog.Duration("interval", cfg.Interval), slog.Int("paths", len(cfg.WatchPaths)))
		return func() { <-done }
	}

	watcher, err := scanner.NewFileWatcher(rt.scanner, cfg.WatchPaths, logger)
	if err != nil {
		logger.Warn("log watcher unavailable", slog.Any("error", err))
		return func() {}
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("log watcher failed to start", slog.Any("error", err))
		watcher.Stop()
		return func() {}
	}
	logger.Info("learning scanner watching", slog.Int("paths", len(cfg.WatchPaths)))
	return watcher.Stop
}

// watchConfig applies automation policy changes from the config file without
// a restart. Other settings take effect on the next start.
func watchConfig(ctx context.Context, rt *runtime) func() {
	if rt.cfg.Source == "" {
		return func() {}
	}
	watcher, err := config.NewWatcher(rt.cfg.Source, 0, rt.logger)
	if err != nil {
		rt.logger.Warn("config reload unavailable", slog.Any("error", err))
		return func() {}
	}
	watcher.OnChange(func(cfg *config.Config) {
		rt.expert.SetPolicy(cfg.Policy())
	})
	if err := watcher.Start(ctx); err != nil {
		rt.logger.Warn("config reload unavailable", slog.Any("error", err))
		watcher.Stop()
		return func() {}
	}
	return watcher.Stop
}
