// Package klog is the kernel's logging facade: a thin, component-scoped
// wrapper over zap.Logger so call sites never import zap directly.
package klog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger scopes structured log fields to one kernel component (e.g.
// "space", "veil", "persistence").
type Logger struct {
	z *zap.Logger
}

var base = newBase()

func newBase() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	return zap.New(core)
}

// SetLevel adjusts the global minimum log level; useful for the debug
// surface and tests that want quiet output.
func SetLevel(level zapcore.Level) {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(os.Stdout), level)
	base = zap.New(core)
}

// For returns a logger scoped to the named component.
func For(component string) *Logger {
	return &Logger{z: base.With(zap.String("component", component))}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// With returns a derived logger with additional fields bound.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Sync flushes any buffered log entries; call on shutdown.
func (l *Logger) Sync() error { return l.z.Sync() }

// Field constructors re-exported so callers need only import klog.
var (
	String   = zap.String
	Int      = zap.Int
	Uint64   = zap.Uint64
	Err      = zap.Error
	Bool     = zap.Bool
	Duration = zap.Duration
	Any      = zap.Any
)
