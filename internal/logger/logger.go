// Package logger is a thin wrapper around a process-wide zap logger.
package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options is one structured field attached to a log line.
type Options struct {
	Key  string
	Data any
}

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init replaces the process logger. format is "json" or "console".
func Init(level, format string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Set(l)
	return nil
}

// Set installs l as the process logger. Tests use it with an observer core.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the process logger.
func L() *zap.Logger {
	return current.Load()
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

func fields(payload []Options) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(payload))
	for _, data := range payload {
		if err, ok := data.Data.(error); ok {
			zapFields = append(zapFields, zap.NamedError(data.Key, err))
			continue
		}
		zapFields = append(zapFields, zap.Any(data.Key, data.Data))
	}
	return zapFields
}

func Debug(msg string, payload ...Options) {
	L().Debug(msg, fields(payload)...)
}

func Info(msg string, payload ...Options) {
	L().Info(msg, fields(payload)...)
}

// Warning logs conditions that were handled but deserve attention.
func Warning(msg string, payload ...Options) {
	L().Warn(msg, fields(payload)...)
}

// Error logs failures. Pass the error itself under the "error" key.
func Error(msg string, payload ...Options) {
	L().Error(msg, fields(payload)...)
}
