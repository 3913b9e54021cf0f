// Package logger provides component-tagged structured logging on top of zap.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how the process-wide logger is built.
type Config struct {
	Environment string
	Level       string
	Service     string
}

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// Init builds the process-wide logger. It is safe to call more than once;
// the last call wins.
func Init(cfg Config) error {
	l, err := build(cfg)
	if err != nil {
		return err
	}
	current.Store(l)
	return nil
}

// SetLogger replaces the process-wide logger, mostly for tests.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the underlying zap logger.
func L() *zap.Logger {
	return current.Load()
}

// Sync flushes buffered entries.
func Sync() {
	_ = current.Load().Sync()
}

func build(cfg Config) (*zap.Logger, error) {
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}

	var zc zap.Config
	if cfg.Environment == "development" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zc.OutputPaths = []string{"stdout"}

	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return l, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func toFields(component string, fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		out = append(out, zap.String("component", component))
	}
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func InfoC(component, msg string) {
	current.Load().Info(msg, toFields(component, nil)...)
}

func DebugCF(component, msg string, fields map[string]any) {
	current.Load().Debug(msg, toFields(component, fields)...)
}

func InfoCF(component, msg string, fields map[string]any) {
	current.Load().Info(msg, toFields(component, fields)...)
}

func WarnCF(component, msg string, fields map[string]any) {
	current.Load().Warn(msg, toFields(component, fields)...)
}

func ErrorCF(component, msg string, fields map[string]any) {
	current.Load().Error(msg, toFields(component, fields)...)
}
