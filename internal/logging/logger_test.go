package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/codefixd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.NotNil(t, logger.zap)
	assert.Equal(t, cfg, logger.config)
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"json", func(c *Config) { c.Format = "json" }, false},
		{"file only", func(c *Config) { c.Output.Stdout = false; c.Output.File = "x.log" }, false},
		{"no output", func(c *Config) { c.Output.Stdout = false }, true},
		{"negative skip", func(c *Config) { c.Caller.Enabled = true; c.Caller.Skip = -1 }, true},
		{"empty field key", func(c *Config) { c.Fields[""] = "v" }, true},
		{"empty field value", func(c *Config) { c.Fields["k"] = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLogger_ContextAwareMethods(t *testing.T) {
	core, observed := observer.New(TraceLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}
	ctx := context.Background()

	logger.Trace(ctx, "trace message")
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	entries := observed.All()
	require.Len(t, entries, 5)
	assert.Equal(t, TraceLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[4].Level)
}

func TestLogger_TraceFilteredAtInfo(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	logger := &Logger{zap: zap.New(core), config: NewDefaultConfig()}

	logger.Trace(context.Background(), "hidden")
	assert.Zero(t, observed.Len())
}

func TestLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "service.log")

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.File = path

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)

	logger.Info(context.Background(), "received local_fix request", zap.String("cwe", "CWE-89"))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, "INFO")
	assert.Contains(t, line, "received local_fix request")
	assert.Contains(t, line, "CWE-89")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestLogger_FileIsAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	require.NoError(t, os.WriteFile(path, []byte("existing line\n"), 0o644))

	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.File = path

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	logger.Warn(context.Background(), "appended")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "existing line", lines[0])
	assert.Contains(t, lines[1], "appended")
}

func TestLogger_OTELCore(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	logger, err := NewLogger(cfg, noop.NewLoggerProvider())
	require.NoError(t, err)
	logger.Info(context.Background(), "to otel")
	assert.NoError(t, logger.Close())
}

func TestLogger_OTELWithoutProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	_, err := NewLogger(cfg, nil)
	assert.Error(t, err)
}

func TestLogger_WithAndNamed(t *testing.T) {
	tl := NewTestLogger()

	tl.With(zap.String("component", "http")).Named("server").Info(context.Background(), "child")

	entries := tl.FilterMessage("child").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "server", entries[0].LoggerName)
	assert.Equal(t, "http", entries[0].ContextMap()["component"])
}

func TestLevelFromString(t *testing.T) {
	lvl, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestSecretFields(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "config loaded",
		Secret("model_api_key", config.Secret("sk-1234567890")),
		Secret("embeddings_api_key", config.Secret("")),
	)

	tl.AssertField(t, "config loaded", "model_api_key", "[REDACTED:13]")
	tl.AssertField(t, "config loaded", "embeddings_api_key", "")
}
