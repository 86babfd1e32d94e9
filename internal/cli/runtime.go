package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/k8s-ai-assistant/expert-engine/internal/actuator"
	"github.com/k8s-ai-assistant/expert-engine/internal/catalog"
	"github.com/k8s-ai-assistant/expert-engine/internal/config"
	"github.com/k8s-ai-assistant/expert-engine/internal/engine"
	"github.com/k8s-ai-assistant/expert-engine/internal/history"
	"github.com/k8s-ai-assistant/expert-engine/internal/scanner"
	"github.com/k8s-ai-assistant/expert-engine/internal/services"
	"github.com/k8s-ai-assistant/expert-engine/internal/storage"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

// runtime holds the wired components shared by every command.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *catalog.Catalog
	store     *history.Store
	scanner   *scanner.Scanner
	collector *scanner.TailCollector
	expert    *services.ExpertService
}

func newRuntime(ctx context.Context, logOutput io.Writer) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return buildRuntime(ctx, cfg, utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, logOutput))
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	backend, err := openBackend(ctx, cfg.History)
	switch {
	case utils.IsKind(err, utils.KindUnavailable):
		logger.Warn("history backend unavailable, history will not persist",
			slog.String("backend", cfg.History.Backend), slog.Any("error", err))
		backend = storage.NoopBackend{}
	case err != nil:
		return nil, fmt.Errorf("open history backend: %w", err)
	}
	store := history.NewStore(history.StoreConfig{
		Capacity: cfg.History.Capacity,
		Known:    cat,
		Backend:  backend,
		Logger:   logger,
	})
	if err := store.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}

	matcher := engine.NewMatcher(cat, cfg.Matcher.TopN)
	sc := scanner.New(matcher, store, scanner.Config{MinConfidence: cfg.Scanner.MinConfidence, Logger: logger})
	executor := actuator.NewExecutor(newActuator(cfg.Actuator, logger), store, actuator.ExecutorConfig{
		StepTimeout:   cfg.Actuator.StepTimeout,
		Preconditions: hostPreconditions(cfg.Actuator),
		Logger:        logger,
	})

	rt := &runtime{cfg: cfg, logger: logger, catalog: cat, store: store, scanner: sc}

	// Polling mode shares one collector between the ticker and analyses so
	// each appended line is scanned once. Watch mode tails in real time and
	// needs no scan before analysis.
	var sources scanner.Collector
	if len(cfg.Scanner.WatchPaths) > 0 && cfg.Scanner.Interval > 0 {
		rt.collector = scanner.NewTailCollector(cfg.Scanner.WatchPaths, scanner.DefaultTailBytes)
		if cfg.Scanner.ScanOnAnalyze {
			sources = rt.collector.Collect
		}
	}

	expert, err := services.NewExpertService(services.Options{
		Catalog: cat,
		Matcher: matcher,
		Predictor: engine.NewPredictor(store, engine.PredictorConfig{
			Capacity:      cfg.History.Capacity,
			HistoryWeight: cfg.History.HistoryWeight,
		}),
		Planner:     engine.NewPlanner(logger),
		History:     store,
		Scanner:     sc,
		Executor:    executor,
		Policy:      cfg.Policy(),
		ScanSources: sources,
		Logger:      logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	rt.expert = expert
	return rt, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}

func openBackend(ctx context.Context, cfg config.HistoryConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return storage.NewFileBackend(cfg.FilePath)
	case config.BackendSQLite:
		return storage.OpenSQLite(cfg.SQLiteDir, "")
	case config.BackendValkey:
		return storage.NewValkeyBackend(ctx, storage.ValkeyConfig{
			Addr:         cfg.Valkey.Addr,
			Username:     cfg.Valkey.Username,
			Password:     cfg.Valkey.Password,
			DB:           cfg.Valkey.DB,
			Key:          cfg.Valkey.Key,
			DialTimeout:  cfg.Valkey.DialTimeout,
			ReadTimeout:  cfg.Valkey.ReadTimeout,
			WriteTimeout: cfg.Valkey.WriteTimeout,
			MaxRetries:   cfg.Valkey.MaxRetries,
			TLS:          cfg.Valkey.TLS,
		})
	default:
		return storage.NoopBackend{}, nil
	}
}

func newActuator(cfg config.ActuatorConfig, logger *slog.Logger) actuator.Actuator {
	if cfg.Mode == config.ModeExec {
		return actuator.NewCommandActuator(cfg.AllowedCommands, logger)
	}
	return actuator.DryRun{Logger: logger}
}

func hostPreconditions(cfg config.ActuatorConfig) []actuator.Precondition {
	if cfg.Mode != config.ModeExec {
		return nil
	}
	var checks []actuator.Precondition
	if cfg.MaxDiskUsedPercent > 0 && cfg.DiskCheckPath != "" {
		checks = append(checks, actuator.DiskSpace(cfg.DiskCheckPath, cfg.MaxDiskUsedPercent))
	}
	if cfg.MinMemoryAvailablePercent > 0 {
		checks = append(checks, actuator.MemoryAvailable(cfg.MinMemoryAvailablePercent))
	}
	return checks
}
