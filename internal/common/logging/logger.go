package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitGlobalLogger configures the global logger from LOG_LEVEL, LOG_FORMAT
// and LOG_FILE. An empty LOG_FILE logs to stdout. The returned closer
// releases the file.
func InitGlobalLogger() (io.Closer, error) {
	opts := Options{
		Level:  ParseLevel(os.Getenv("LOG_LEVEL")),
		Format: Format(strings.ToLower(os.Getenv("LOG_FORMAT"))),
	}

	var closer io.Closer = nopCloser{}
	logFile := os.Getenv("LOG_FILE")
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		opts.Output = file
		closer = file
	}

	logger := NewZapLogger(opts)
	SetGlobalLogger(logger)
	logger.Info("Logger initialized",
		String("level", opts.Level.String()),
		String("log_file", logFile),
	)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// MustSync flushes buffered entries of the global logger. Call before exit.
func MustSync() {
	if z, ok := GetGlobalLogger().(*ZapAdapter); ok {
		_ = z.Sync()
	}
}

func WithContext(ctx context.Context) Logger {
	return GetGlobalLogger().WithContext(ctx)
}

func WithFields(fields ...Field) Logger {
	return GetGlobalLogger().WithFields(fields...)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &ZapAdapter{logger: zap.NewNop()}
}

// NewTestLogger writes every level to w with the console encoder.
func NewTestLogger(w io.Writer) Logger {
	return NewZapLogger(Options{Level: zapcore.DebugLevel, Output: zapcore.AddSync(w)})
}
