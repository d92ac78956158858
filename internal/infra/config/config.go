package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text" or "json"
	Output string `yaml:"output"` // "stdout", "stderr", or a file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// BreakerConfig configures the circuit breaker around the LLM completer.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`
	Timeout     string `yaml:"timeout"`  // duration string, e.g. "30s"
	Interval    string `yaml:"interval"` // duration string, e.g. "60s"
}

// LLMConfig holds LLM completer settings.
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // "bedrock" or "static"
	Region          string        `yaml:"region"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"max_tokens"`
	RequestsPerMin  float64       `yaml:"requests_per_min"` // 0 = unlimited
	BurstSize       int           `yaml:"burst_size"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// KnowledgeConfig holds knowledge store settings.
type KnowledgeConfig struct {
	Path          string `yaml:"path"`           // sqlite file path; ":memory:" for tests
	RetentionDays int    `yaml:"retention_days"` // 0 = keep forever
	SweepSchedule string `yaml:"sweep_schedule"` // cron expression
	SearchLimit   int    `yaml:"search_limit"`
}

// OrchestratorConfig holds recovery and scheduling knobs.
type OrchestratorConfig struct {
	MaxRetries       int    `yaml:"max_retries"`
	MaxReplans       int    `yaml:"max_replans"`
	MaxParallelSteps int    `yaml:"max_parallel_steps"`
	ObjectiveTimeout string `yaml:"objective_timeout"` // duration string
	BackoffStrategy  string `yaml:"backoff_strategy"`  // "exponential_backoff", "linear_backoff", "immediate"
}

// QueueConfig holds task queue settings.
type QueueConfig struct {
	Capacity      int `yaml:"capacity"`
	MaxRedelivery int `yaml:"max_redelivery"`
}

// Config is the top-level application configuration.
type Config struct {
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
	LLM          LLMConfig          `yaml:"llm"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Queue        QueueConfig        `yaml:"queue"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		LLM: LLMConfig{
			Provider:    "static",
			Region:      "us-east-1",
			Model:       "anthropic.claude-3-5-sonnet-20241022-v2:0",
			Temperature: 0.3,
			MaxTokens:   1024,
			BurstSize:   1,
			Breaker:     BreakerConfig{MaxFailures: 5, Timeout: "30s", Interval: "60s"},
		},
		Knowledge: KnowledgeConfig{
			Path:          "conductor.db",
			RetentionDays: 90,
			SweepSchedule: "0 3 * * *",
			SearchLimit:   5,
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:       2,
			MaxReplans:       1,
			MaxParallelSteps: 4,
			ObjectiveTimeout: "5m",
			BackoffStrategy:  "exponential_backoff",
		},
		Queue: QueueConfig{Capacity: 64, MaxRedelivery: 3},
	}
}

// Load reads a YAML config file, applies environment overrides, and validates.
// A missing path returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyEnv(&cfg)
				return cfg, cfg.Validate()
			}
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

// applyEnv overlays CONDUCTOR_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("CONDUCTOR_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CONDUCTOR_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("CONDUCTOR_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CONDUCTOR_AWS_REGION"); v != "" {
		cfg.LLM.Region = v
	}
	if v := os.Getenv("CONDUCTOR_KNOWLEDGE_PATH"); v != "" {
		cfg.Knowledge.Path = v
	}
	if v := os.Getenv("CONDUCTOR_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxRetries = n
		}
	}
	if v := os.Getenv("CONDUCTOR_MAX_REPLANS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxReplans = n
		}
	}
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries must be >= 0")
	}
	if c.Orchestrator.MaxReplans < 0 {
		return fmt.Errorf("orchestrator.max_replans must be >= 0")
	}
	if c.Orchestrator.MaxParallelSteps < 1 {
		return fmt.Errorf("orchestrator.max_parallel_steps must be >= 1")
	}
	switch c.Orchestrator.BackoffStrategy {
	case "exponential_backoff", "linear_backoff", "immediate":
	default:
		return fmt.Errorf("orchestrator.backoff_strategy %q unknown", c.Orchestrator.BackoffStrategy)
	}
	if _, err := c.ObjectiveTimeout(); err != nil {
		return err
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be >= 1")
	}
	return nil
}

// ObjectiveTimeout parses the per-objective timeout duration.
func (c Config) ObjectiveTimeout() (time.Duration, error) {
	if c.Orchestrator.ObjectiveTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Orchestrator.ObjectiveTimeout)
	if err != nil {
		return 0, fmt.Errorf("orchestrator.objective_timeout: %w", err)
	}
	return d, nil
}

// BreakerTimeout parses the breaker open-state timeout.
func (c BreakerConfig) BreakerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// BreakerInterval parses the breaker closed-state reset interval.
func (c BreakerConfig) BreakerInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
