// Package logging is the structured logger shared by every component. It is
// a thin layer over zap that carries request, user, connection and sync run
// identifiers from a context into log fields.
package logging

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Field is one structured key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
}

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	WithFields(fields ...Field) Logger
	WithContext(ctx context.Context) Logger
}

// Format selects the zap encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures NewZapLogger. The zero value logs INFO and above to
// stdout with the console encoder.
type Options struct {
	Level  zapcore.Level
	Format Format
	Output zapcore.WriteSyncer
}

// ParseLevel maps LOG_LEVEL values onto zap levels. Unknown values mean INFO.
func ParseLevel(name string) zapcore.Level {
	name = strings.ToLower(name)
	if name == "warning" {
		return zapcore.WarnLevel
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

type contextKey string

// Context keys lifted into log fields by WithContext.
const (
	RequestIDKey    contextKey = "request_id"
	UserIDKey       contextKey = "user_id"
	ConnectionIDKey contextKey = "connection_id"
	SyncRunIDKey    contextKey = "sync_run_id"
)

var contextKeys = []contextKey{RequestIDKey, UserIDKey, ConnectionIDKey, SyncRunIDKey}

// ContextWith stores a string value under one of the logging context keys.
func ContextWith(ctx context.Context, key contextKey, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger, creating a console logger on
// first use when InitGlobalLogger has not run.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewZapLogger(Options{})
	}
	return globalLogger
}

func Debug(msg string, fields ...Field) { GetGlobalLogger().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { GetGlobalLogger().Warn(msg, fields...) }

func Error(msg string, err error, fields ...Field) {
	GetGlobalLogger().Error(msg, err, fields...)
}
