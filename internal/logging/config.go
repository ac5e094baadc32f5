package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level
	Format string // console, json
	Output OutputConfig
	Caller CallerConfig
	Fields map[string]string
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool
	// File is appended to when non-empty, typically logs/service.log.
	File string
	OTEL bool
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// NewDefaultConfig returns console logging to stdout at info level.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "console",
		Output: OutputConfig{
			Stdout: true,
		},
		Caller: CallerConfig{
			Enabled: false,
			Skip:    1,
		},
		Fields: map[string]string{
			"service": "codefixd",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if !c.Output.Stdout && c.Output.File == "" && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (stdout, file or otel)")
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
