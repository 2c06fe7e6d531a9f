package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "PROMPTFORGE_"

// Config holds all configuration for promptforge
type Config struct {
	LLM        LLMConfig        `koanf:"llm"`
	TestRunner TestRunnerConfig `koanf:"testrunner"`
	Database   DatabaseConfig   `koanf:"database"`
	Server     ServerConfig     `koanf:"server"`
	Training   TrainingConfig   `koanf:"training"`
	Export     ExportConfig     `koanf:"export"`
	Logging    LoggingConfig    `koanf:"logging"`
	Tracing    TracingConfig    `koanf:"tracing"`
}

// LLMConfig holds the OpenAI-compatible endpoint used to synthesize candidates
type LLMConfig struct {
	URL         string  `koanf:"url"`
	APIKey      string  `koanf:"api_key"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
}

// TestRunnerConfig holds the evaluation endpoint configuration
type TestRunnerConfig struct {
	URL            string        `koanf:"url"`
	APIKey         string        `koanf:"api_key"`
	MaxFailures    int           `koanf:"max_failures"`    // consecutive failures before the breaker opens
	BreakerTimeout time.Duration `koanf:"breaker_timeout"` // how long the breaker stays open
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// PostgresURL selects the postgres store; empty means in-memory storage
	PostgresURL string `koanf:"postgres_url"`
	MaxConns    int    `koanf:"max_conns"`
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// TrainingConfig holds the training decision policy
type TrainingConfig struct {
	ErrorThreshold         float64       `koanf:"error_threshold"`
	RatingThreshold        float64       `koanf:"rating_threshold"`
	SuggestionThreshold    int           `koanf:"suggestion_threshold"`
	VolumeThreshold        int           `koanf:"volume_threshold"`
	MinTrainingInterval    time.Duration `koanf:"min_training_interval"`
	SafetyFloor            float64       `koanf:"safety_floor"`
	SuccessFloor           float64       `koanf:"success_floor"`
	ImprovementThreshold   float64       `koanf:"improvement_threshold"`
	RegressionTolerance    float64       `koanf:"regression_tolerance"`
	AutoDeploy             bool          `koanf:"auto_deploy"`
	MaxParallelTrainings   int           `koanf:"max_parallel_trainings"`
	MonitorIntervalSeconds int           `koanf:"monitor_interval_seconds"`
	RetentionDays          int           `koanf:"retention_days"`
	FeedbackWindow         time.Duration `koanf:"feedback_window"`
	MinExecutionTime       time.Duration `koanf:"min_execution_time"` // success reports faster than this are dropped
	SynthesisTimeout       time.Duration `koanf:"synthesis_timeout"`
	EvaluationTimeout      time.Duration `koanf:"evaluation_timeout"`
}

// ExportConfig controls the export read path
type ExportConfig struct {
	Dir       string        `koanf:"dir"`
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"` // bounds staleness after deploys made by other processes
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// TracingConfig controls the OpenTelemetry tracer
type TracingConfig struct {
	Enabled      bool   `koanf:"enabled"`
	ServiceName  string `koanf:"service_name"`
	OTLPEndpoint string `koanf:"otlp_endpoint"` // stdout exporter when empty
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		LLM: LLMConfig{
			URL:         "http://localhost:8000/v1",
			Model:       "Qwen/Qwen3-8B-AWQ",
			MaxTokens:   4096,
			Temperature: 0.7,
		},
		TestRunner: TestRunnerConfig{
			URL:            "http://localhost:8090",
			MaxFailures:    5,
			BreakerTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 10,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Training: TrainingConfig{
			ErrorThreshold:         0.20,
			RatingThreshold:        0.60,
			SuggestionThreshold:    3,
			VolumeThreshold:        50,
			MinTrainingInterval:    24 * time.Hour,
			SafetyFloor:            0.90,
			SuccessFloor:           0.80,
			ImprovementThreshold:   0.05,
			RegressionTolerance:    0.02,
			AutoDeploy:             true,
			MaxParallelTrainings:   4,
			MonitorIntervalSeconds: 3600,
			RetentionDays:          90,
			FeedbackWindow:         7 * 24 * time.Hour,
			MinExecutionTime:       100 * time.Millisecond,
			SynthesisTimeout:       120 * time.Second,
			EvaluationTimeout:      300 * time.Second,
		},
		Export: ExportConfig{
			Dir:       filepath.Join(homeDir, ".promptforge", "export"),
			CacheSize: 256,
			CacheTTL:  30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "promptforge",
		},
	}
}

// MonitorInterval returns the monitor tick period
func (t TrainingConfig) MonitorInterval() time.Duration {
	return time.Duration(t.MonitorIntervalSeconds) * time.Second
}

// Retention returns the feedback retention horizon
func (t TrainingConfig) Retention() time.Duration {
	return time.Duration(t.RetentionDays) * 24 * time.Hour
}

// envKey maps PROMPTFORGE_TRAINING_ERROR_THRESHOLD to training.error_threshold
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Load loads configuration from the config file and PROMPTFORGE_* environment variables.
//
// Precedence (highest to lowest): environment, YAML file, DefaultConfig.
// An empty path uses PROMPTFORGE_CONFIG or ~/.config/promptforge/config.yaml;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getConfigPath()
	}

	var content []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		content = data
	}

	return load(content, env.Provider(EnvPrefix, ".", envKey))
}

// Parse loads configuration from YAML bytes without consulting the environment
func Parse(content []byte) (*Config, error) {
	return load(content, nil)
}

func load(content []byte, envProvider koanf.Provider) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if envProvider != nil {
		if err := k.Load(envProvider, nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UsesPostgres reports whether a postgres store is configured
func (c *Config) UsesPostgres() bool {
	return c.Database.PostgresURL != ""
}

// isValidURL validates that a URL has proper format
func isValidURL(urlStr string) bool {
	u, err := url.Parse(urlStr)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}

	// LLM validation
	if c.LLM.URL == "" {
		errs = append(errs, "LLM URL is required")
	} else if !isValidURL(c.LLM.URL) {
		errs = append(errs, "LLM URL must be a valid URL")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "LLM temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 1 {
		errs = append(errs, "LLM max_tokens must be positive")
	}

	// Test runner validation
	if c.TestRunner.URL == "" {
		errs = append(errs, "test runner URL is required")
	} else if !isValidURL(c.TestRunner.URL) {
		errs = append(errs, "test runner URL must be a valid URL")
	}
	if c.TestRunner.MaxFailures < 1 {
		errs = append(errs, "test runner max_failures must be at least 1")
	}

	// Database validation
	if c.Database.PostgresURL != "" && !isValidURL(c.Database.PostgresURL) {
		errs = append(errs, "PostgreSQL URL must be a valid URL")
	}

	// Training policy validation
	t := c.Training
	for name, v := range map[string]float64{
		"error_threshold":       t.ErrorThreshold,
		"rating_threshold":      t.RatingThreshold,
		"safety_floor":          t.SafetyFloor,
		"success_floor":         t.SuccessFloor,
		"improvement_threshold": t.ImprovementThreshold,
		"regression_tolerance":  t.RegressionTolerance,
	} {
		if !inUnit(v) {
			errs = append(errs, fmt.Sprintf("training %s must be between 0 and 1", name))
		}
	}
	if t.SuggestionThreshold < 1 {
		errs = append(errs, "training suggestion_threshold must be at least 1")
	}
	if t.VolumeThreshold < 1 {
		errs = append(errs, "training volume_threshold must be at least 1")
	}
	if t.MinTrainingInterval < 0 {
		errs = append(errs, "training min_training_interval cannot be negative")
	}
	if t.MaxParallelTrainings < 1 {
		errs = append(errs, "training max_parallel_trainings must be at least 1")
	}
	if t.MonitorIntervalSeconds < 1 {
		errs = append(errs, "training monitor_interval_seconds must be at least 1")
	}
	if t.RetentionDays < 1 {
		errs = append(errs, "training retention_days must be at least 1")
	}
	if t.FeedbackWindow <= 0 {
		errs = append(errs, "training feedback_window must be positive")
	}
	if t.MinExecutionTime < 0 {
		errs = append(errs, "training min_execution_time must not be negative")
	}
	if t.SynthesisTimeout <= 0 {
		errs = append(errs, "training synthesis_timeout must be positive")
	}
	if t.EvaluationTimeout <= 0 {
		errs = append(errs, "training evaluation_timeout must be positive")
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, "logging format must be 'json' or 'console'")
	}

	if c.Export.CacheSize < 1 {
		errs = append(errs, "export cache_size must be at least 1")
	}
	if c.Export.CacheTTL <= 0 {
		errs = append(errs, "export cache_ttl must be positive")
	}

	if len(errs) > 0 {
		// map iteration above is unordered
		slices.Sort(errs)
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() string {
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}

	return filepath.Join(homeDir, ".config", "promptforge", "config.yaml")
}
