// Package logging provides named loggers for the relay components.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used throughout the service.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	// With returns a child logger with the given structured key/value pairs.
	With(args ...any) Logger
}

var (
	mu    sync.Mutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  *zap.Logger
)

func baseLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if base == nil {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), level)
		base = zap.New(core)
	}
	return base
}

// New returns a named logger. Loggers created before and after a SetLogLevel
// call share the same level.
func New(name string) Logger {
	return wrapper{baseLogger().Named(name).Sugar()}
}

// SetLogLevel sets the global log level. Accepts debug, info, warn, error.
func SetLogLevel(l string) {
	switch strings.ToLower(l) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "info", "":
		level.SetLevel(zapcore.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	}
}

type wrapper struct {
	l *zap.SugaredLogger
}

func (w wrapper) Debugf(format string, args ...any) { w.l.Debugf(format, args...) }
func (w wrapper) Infof(format string, args ...any)  { w.l.Infof(format, args...) }
func (w wrapper) Warnf(format string, args ...any)  { w.l.Warnf(format, args...) }
func (w wrapper) Errorf(format string, args ...any) { w.l.Errorf(format, args...) }
func (w wrapper) Fatalf(format string, args ...any) { w.l.Fatalf(format, args...) }
func (w wrapper) With(args ...any) Logger           { return wrapper{w.l.With(args...)} }
