package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the enabled outputs. The returned closers release the log
// file.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, []func() error, error) {
	cores := make([]zapcore.Core, 0, 3)
	var closers []func() error

	if cfg.Output.Stdout {
		writer := zapcore.Lock(zapcore.AddSync(os.Stdout))
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), writer, cfg.Level))
	}

	if cfg.Output.File != "" {
		f, err := openLogFile(cfg.Output.File)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, f.Close)
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(f), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore("codefixd",
			otelzap.WithLoggerProvider(otelProvider),
		))
	}

	if len(cores) == 0 {
		return nil, nil, fmt.Errorf("at least one output must be enabled and available")
	}
	if len(cores) == 1 {
		return cores[0], closers, nil
	}
	return zapcore.NewTee(cores...), closers, nil
}

// openLogFile opens path for appending, creating its directory as needed.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return f, nil
}
