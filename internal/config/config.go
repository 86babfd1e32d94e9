package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

// Config captures the settings required to boot the expert engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Matcher    MatcherConfig    `yaml:"matcher"`
	Automation AutomationConfig `yaml:"automation"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	History    HistoryConfig    `yaml:"history"`
	Actuator   ActuatorConfig   `yaml:"actuator"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CatalogConfig points at an issue catalog file. Empty uses the built-in one.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// MatcherConfig bounds match results.
type MatcherConfig struct {
	TopN int `yaml:"topN"`
}

// AutomationConfig sets how much remediation may run unattended.
// ConfidenceThreshold is a percentage.
type AutomationConfig struct {
	Level               string `yaml:"level"`
	ConfidenceThreshold int    `yaml:"confidenceThreshold"`
}

// ScannerConfig controls the continuous learning scanner. A positive
// Interval polls WatchPaths on a ticker; zero tails them with filesystem
// notifications instead.
type ScannerConfig struct {
	MinConfidence float64       `yaml:"minConfidence"`
	Interval      time.Duration `yaml:"interval"`
	WatchPaths    []string      `yaml:"watchPaths"`
	ScanOnAnalyze bool          `yaml:"scanOnAnalyze"`
}

// HistoryConfig controls the issue history store and its persistence.
type HistoryConfig struct {
	Capacity      int          `yaml:"capacity"`
	HistoryWeight float64      `yaml:"historyWeight"`
	Backend       string       `yaml:"backend"`
	FilePath      string       `yaml:"filePath"`
	SQLiteDir     string       `yaml:"sqliteDir"`
	Valkey        ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig configures the Valkey snapshot backend.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// ActuatorConfig controls how approved plans are executed. Host checks run
// before any step; a zero limit disables that check.
type ActuatorConfig struct {
	Mode                      string        `yaml:"mode"`
	StepTimeout               time.Duration `yaml:"stepTimeout"`
	AllowedCommands           []string      `yaml:"allowedCommands"`
	DiskCheckPath             string        `yaml:"diskCheckPath"`
	MaxDiskUsedPercent        float64       `yaml:"maxDiskUsedPercent"`
	MinMemoryAvailablePercent float64       `yaml:"minMemoryAvailablePercent"`
}

// History persistence backends.
const (
	BackendNone   = "none"
	BackendFile   = "file"
	BackendValkey = "valkey"
	BackendSQLite = "sqlite"
)

// Actuator modes.
const (
	ModeDryRun = "dry-run"
	ModeExec   = "exec"
)

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("EXPERT_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.Source = path
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging:    LoggingConfig{Level: "info", JSON: false},
		Matcher:    MatcherConfig{TopN: 5},
		Automation: AutomationConfig{Level: string(models.AutomationSemiAuto), ConfidenceThreshold: 80},
		Scanner: ScannerConfig{
			MinConfidence: 0.3,
			Interval:      5 * time.Minute,
			ScanOnAnalyze: true,
		},
		History: HistoryConfig{
			Capacity:      3,
			HistoryWeight: 0.5,
			Backend:       BackendNone,
			FilePath:      "data/issue_history.json",
			SQLiteDir:     "data",
			Valkey: ValkeyConfig{
				Key:          "expert-engine:issue_history",
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Actuator: ActuatorConfig{
			Mode:                      ModeDryRun,
			StepTimeout:               30 * time.Second,
			DiskCheckPath:             "/",
			MaxDiskUsedPercent:        95,
			MinMemoryAvailablePercent: 5,
		},
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := models.ParseAutomationLevel(c.Automation.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Automation.ConfidenceThreshold < 0 || c.Automation.ConfidenceThreshold > 100 {
		errs = append(errs, fmt.Errorf("automation.confidenceThreshold %d outside 0-100", c.Automation.ConfidenceThreshold))
	}
	if c.Scanner.MinConfidence < 0 || c.Scanner.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("scanner.minConfidence %v outside [0,1]", c.Scanner.MinConfidence))
	}
	if c.Scanner.Interval < 0 {
		errs = append(errs, fmt.Errorf("scanner.interval must not be negative, got %s", c.Scanner.Interval))
	}
	if c.History.Capacity < 1 {
		errs = append(errs, fmt.Errorf("history.capacity must be at least 1, got %d", c.History.Capacity))
	}
	if c.History.HistoryWeight < 0 || c.History.HistoryWeight > 1 {
		errs = append(errs, fmt.Errorf("history.historyWeight %v outside [0,1]", c.History.HistoryWeight))
	}
	switch c.History.Backend {
	case BackendNone, BackendFile, BackendSQLite:
	case BackendValkey:
		if c.History.Valkey.Addr == "" {
			errs = append(errs, errors.New("history.valkey.addr is required for the valkey backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history.backend %q", c.History.Backend))
	}
	switch c.Actuator.Mode {
	case ModeDryRun, ModeExec:
	default:
		errs = append(errs, fmt.Errorf("unknown actuator.mode %q", c.Actuator.Mode))
	}
	if c.Matcher.TopN < 0 {
		errs = append(errs, fmt.Errorf("matcher.topN must not be negative, got %d", c.Matcher.TopN))
	}
	return errors.Join(errs...)
}

// Policy converts the automation section into a planner policy.
func (c *Config) Policy() models.AutomationPolicy {
	level, err := models.ParseAutomationLevel(c.Automation.Level)
	if err != nil {
		level = models.AutomationManual
	}
	return models.AutomationPolicy{
		Level:               level,
		ConfidenceThreshold: float64(c.Automation.ConfidenceThreshold) / 100,
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EXPERT_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("EXPERT_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("EXPERT_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EXPERT_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("EXPERT_ENGINE_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("K8S_AI_AUTOMATION_LEVEL"); v != "" {
		cfg.Automation.Level = v
	}
	if v := os.Getenv("K8S_AI_CONFIDENCE_THRESHOLD"); v != "" {
		threshold, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("K8S_AI_CONFIDENCE_THRESHOLD: %w", err)
		}
		cfg.Automation.ConfidenceThreshold = threshold
	}
	if v := os.Getenv("EXPERT_ENGINE_SCAN_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scanner.MinConfidence = f
		}
	}
	if v := os.Getenv("EXPERT_ENGINE_SCAN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scanner.Interval = d
		}
	}
	if v := os.Getenv("EXPERT_ENGINE_WATCH_PATHS"); v != "" {
		cfg.Scanner.WatchPaths = splitList(v)
	}
	if v := os.Getenv("EXPERT_ENGINE_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("EXPERT_ENGINE_HISTORY_FILE"); v != "" {
		cfg.History.FilePath = v
	}
	if v := os.Getenv("EXPERT_ENGINE_HISTORY_SQLITE_DIR"); v != "" {
		cfg.History.SQLiteDir = v
	}
	if v := os.Getenv("EXPERT_ENGINE_VALKEY_ADDR"); v != "" {
		cfg.History.Valkey.Addr = v
	}
	if v := os.Getenv("EXPERT_ENGINE_VALKEY_USERNAME"); v != "" {
		cfg.History.Valkey.Username = v
	}
	if v := os.Getenv("EXPERT_ENGINE_VALKEY_PASSWORD"); v != "" {
		cfg.History.Valkey.Password = v
	}
	if v := os.Getenv("EXPERT_ENGINE_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.History.Valkey.DB = db
		}
	}
	if v := os.Getenv("EXPERT_ENGINE_VALKEY_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.History.Valkey.TLS = true
	}
	if v := os.Getenv("EXPERT_ENGINE_ACTUATOR_MODE"); v != "" {
		cfg.Actuator.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("EXPERT_ENGINE_STEP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Actuator.StepTimeout = d
		}
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
