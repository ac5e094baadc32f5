// Package config loads codefixd configuration.
//
// Values come from hardcoded defaults, an optional YAML file, an optional
// .env file and CODEFIX_* environment variables, in increasing order of
// precedence. Configuration is read once at startup; changes require a
// restart.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the complete codefixd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Model       ModelConfig       `koanf:"model"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Recipes     RecipesConfig     `koanf:"recipes"`
	Logs        LogsConfig        `koanf:"logs"`
	Logging     LoggingConfig     `koanf:"logging"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Remediation RemediationConfig `koanf:"remediation"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// ModelConfig selects and tunes the code generation model.
type ModelConfig struct {
	Provider     string  `koanf:"provider"` // ollama, openai
	Name         string  `koanf:"name"`
	BaseURL      string  `koanf:"base_url"`
	Device       string  `koanf:"device"` // cpu, cuda
	MaxNewTokens int     `koanf:"max_new_tokens"`
	Temperature  float64 `koanf:"temperature"`
	APIKey       Secret  `koanf:"api_key"`
}

// EmbeddingsConfig selects the sentence-embedding provider.
type EmbeddingsConfig struct {
	Provider string `koanf:"provider"` // fastembed, tei, openai
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	CacheDir string `koanf:"cache_dir"`
	APIKey   Secret `koanf:"api_key"`
}

// RecipesConfig locates the recipe corpus and picks the index backend.
type RecipesConfig struct {
	Dir     string `koanf:"dir"`
	Pattern string `koanf:"pattern"`
	Index   string `koanf:"index"` // flat, chromem
}

// LogsConfig holds the directory for service.log and metrics.csv.
type LogsConfig struct {
	Dir string `koanf:"dir"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console, json
	Stdout bool   `koanf:"stdout"`
}

// MetricsConfig controls optional metrics fan-out to NATS and SQLite.
type MetricsConfig struct {
	NATSURL     string `koanf:"nats_url"`
	NATSSubject string `koanf:"nats_subject"`
	// SQLitePath enables the SQLite sink when non-empty.
	SQLitePath string `koanf:"sqlite_path"`
}

// RemediationConfig tunes the fix pipeline.
type RemediationConfig struct {
	ScrubSecrets bool `koanf:"scrub_secrets"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"` // grpc, http/protobuf
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Model: ModelConfig{
			Provider:     "ollama",
			Name:         "deepseek-coder:1.3b-instruct",
			BaseURL:      "http://localhost:11434",
			Device:       "cpu",
			MaxNewTokens: 512,
			Temperature:  0.2,
		},
		Embeddings: EmbeddingsConfig{
			Provider: "fastembed",
			Model:    "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:  "http://localhost:8080",
			CacheDir: "local_cache",
		},
		Recipes: RecipesConfig{
			Dir:     "recipes",
			Pattern: "*.txt",
			Index:   "flat",
		},
		Logs: LogsConfig{
			Dir: "logs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Stdout: true,
		},
		Metrics: MetricsConfig{
			NATSSubject: "codefix.metrics",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Protocol:   "grpc",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be 1-65535, got %d", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalidConfig)
	}

	switch c.Model.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("%w: unknown model.provider %q", ErrInvalidConfig, c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("%w: model.name required", ErrInvalidConfig)
	}
	if c.Model.Device != "cpu" && c.Model.Device != "cuda" {
		return fmt.Errorf("%w: model.device must be cpu or cuda, got %q", ErrInvalidConfig, c.Model.Device)
	}
	if c.Model.MaxNewTokens <= 0 {
		return fmt.Errorf("%w: model.max_new_tokens must be positive", ErrInvalidConfig)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("%w: model.temperature must be within [0, 2], got %v", ErrInvalidConfig, c.Model.Temperature)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei", "openai":
	default:
		return fmt.Errorf("%w: unknown embeddings.provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}

	if c.Recipes.Dir == "" {
		return fmt.Errorf("%w: recipes.dir required", ErrInvalidConfig)
	}
	if c.Recipes.Pattern == "" {
		return fmt.Errorf("%w: recipes.pattern required", ErrInvalidConfig)
	}
	if c.Recipes.Index != "flat" && c.Recipes.Index != "chromem" {
		return fmt.Errorf("%w: recipes.index must be flat or chromem, got %q", ErrInvalidConfig, c.Recipes.Index)
	}
	if c.Logs.Dir == "" {
		return fmt.Errorf("%w: logs.dir required", ErrInvalidConfig)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("%w: logging.format must be console or json, got %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Metrics.NATSURL != "" && c.Metrics.NATSSubject == "" {
		return fmt.Errorf("%w: metrics.nats_subject required when nats_url is set", ErrInvalidConfig)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("%w: telemetry.sample_rate must be within [0, 1]", ErrInvalidConfig)
	}

	return nil
}
