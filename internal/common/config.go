package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Broker      BrokerConfig    `toml:"broker"`
	Chart       ChartConfig     `toml:"chart"`
	Analyzer    AnalyzerConfig  `toml:"analyzer"`
	Ingest      IngestConfig    `toml:"ingest"`
	LLM         LLMConfig       `toml:"llm"`
	Storage     StorageConfig   `toml:"storage"`
	Retention   RetentionConfig `toml:"retention"`
	Agents      AgentsConfig    `toml:"agents"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// BrokerConfig configures the Kiwoom REST API access.
type BrokerConfig struct {
	BaseURL       string `toml:"base_url" validate:"required,url"`
	AppKeyFile    string `toml:"app_key_file"`    // File containing the app key (one line)
	SecretKeyFile string `toml:"secret_key_file"` // File containing the secret key (one line)
	TokenFile     string `toml:"token_file"`      // Cached access token path
	Timeout       string `toml:"timeout"`         // e.g. "30s"
}

// ChartConfig configures the chart resolution engine.
type ChartConfig struct {
	MaxRows  int    `toml:"max_rows" validate:"gt=0"` // Oversized-window threshold
	AuditDir string `toml:"audit_dir"`                // Write-only raw/filtered audit output
}

// AnalyzerConfig configures the external document-digitization service.
type AnalyzerConfig struct {
	BaseURL    string `toml:"base_url" validate:"required,url"`
	APIKeyEnv  string `toml:"api_key_env"` // Env var holding the API key
	Timeout    string `toml:"timeout"`     // Per-request timeout, e.g. "2m"
	MaxRetries int    `toml:"max_retries" validate:"gte=1"`
}

// IngestConfig configures the PDF ingestion pipeline.
type IngestConfig struct {
	BatchSize      int    `toml:"batch_size" validate:"gt=0"` // Pages per split batch
	UploadDir      string `toml:"upload_dir"`                 // Saved PDFs and metadata sidecars
	WorkDir        string `toml:"work_dir"`                   // logs/{uid}/... artifact root
	StateFile      string `toml:"state_file"`                 // processed_states.json path
	AnalyzerDPI    int    `toml:"analyzer_dpi"`               // Coordinate frame of analyzer output
	RenderDPI      int    `toml:"render_dpi"`                 // Rasterization DPI for cropping
	TimeoutMinutes int    `toml:"timeout_minutes"`            // Wall-clock watchdog per ingestion
}

// LLMConfig configures the multimodal summarizer providers.
type LLMConfig struct {
	Provider          string  `toml:"provider"` // "claude" or "gemini"
	Model             string  `toml:"model"`
	APIKeyEnv         string  `toml:"api_key_env"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxTokens         int     `toml:"max_tokens"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// RetentionConfig configures the artifact janitor.
type RetentionConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule
	MaxAge   string `toml:"max_age"`  // e.g. "168h"
}

// AgentsConfig configures supervisor routing.
type AgentsConfig struct {
	RulesFile string `toml:"rules_file"` // YAML routing rules
}

// DefaultConfig returns a config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Broker: BrokerConfig{
			BaseURL:       "https://api.kiwoom.com",
			AppKeyFile:    "secrets/appkey",
			SecretKeyFile: "secrets/secretkey",
			TokenFile:     "secrets/access_token.json",
			Timeout:       "30s",
		},
		Chart: ChartConfig{
			MaxRows:  100,
			AuditDir: "logs/chart_audit",
		},
		Analyzer: AnalyzerConfig{
			BaseURL:    "https://api.upstage.ai/v1/document-digitization",
			APIKeyEnv:  "UPSTAGE_API_KEY",
			Timeout:    "2m",
			MaxRetries: 3,
		},
		Ingest: IngestConfig{
			BatchSize:      10,
			UploadDir:      "uploads",
			WorkDir:        "logs",
			StateFile:      "vectordb/processed_states.json",
			AnalyzerDPI:    150,
			RenderDPI:      300,
			TimeoutMinutes: 10,
		},
		LLM: LLMConfig{
			Provider:          "claude",
			Model:             "",
			APIKeyEnv:         "ANTHROPIC_API_KEY",
			RequestsPerSecond: 2,
			Burst:             3,
			MaxTokens:         1024,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "data/sessions",
			},
		},
		Retention: RetentionConfig{
			Enabled:  false,
			Schedule: "0 3 * * *",
			MaxAge:   "168h",
		},
		Agents: AgentsConfig{
			RulesFile: "",
		},
	}
}

// LoadConfig loads configuration: defaults -> file -> env overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Ingest.AnalyzerDPI <= 0 || c.Ingest.RenderDPI <= 0 {
		return fmt.Errorf("invalid configuration: ingest DPI values must be positive")
	}
	return nil
}

// BrokerTimeout returns the parsed broker HTTP timeout.
func (c *Config) BrokerTimeout() time.Duration {
	return parseDurationOr(c.Broker.Timeout, 30*time.Second)
}

// AnalyzerTimeout returns the parsed analyzer HTTP timeout.
func (c *Config) AnalyzerTimeout() time.Duration {
	return parseDurationOr(c.Analyzer.Timeout, 2*time.Minute)
}

// IngestTimeout returns the per-document ingestion watchdog timeout.
func (c *Config) IngestTimeout() time.Duration {
	if c.Ingest.TimeoutMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Ingest.TimeoutMinutes) * time.Minute
}

// RetentionMaxAge returns the parsed artifact retention age.
func (c *Config) RetentionMaxAge() time.Duration {
	return parseDurationOr(c.Retention.MaxAge, 7*24*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// applyEnvOverrides applies FINSIGHT_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINSIGHT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FINSIGHT_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FINSIGHT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FINSIGHT_BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("FINSIGHT_ANALYZER_BASE_URL"); v != "" {
		cfg.Analyzer.BaseURL = v
	}
	if v := os.Getenv("FINSIGHT_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
}
