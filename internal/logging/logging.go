// Package logging builds the process-wide logger. The minimum level comes
// from LOG_LEVEL; components receive the logger as an explicit dependency.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production logger at the given minimum level. Levels:
// debug, info, warn, error. Empty defaults to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}

	switch level {
	case "", "info":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return nil, fmt.Errorf("logging: unknown LOG_LEVEL %q", level)
	}

	return cfg.Build()
}

// FromEnv builds the logger from LOG_LEVEL, falling back to info (with a
// note on stderr) when the variable holds an unknown level.
func FromEnv() *zap.Logger {
	logger, err := New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using info\n", err)
		logger, _ = New("info")
	}
	return logger
}
