package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Phucdanghoc/File-store-sub000/internal/domain"

	"github.com/rs/zerolog"
)

// AppLogger implements the domain.Logger interface
type AppLogger struct {
	logger zerolog.Logger
}

// NewLogger creates a new logger instance writing human-readable lines to stdout.
func NewLogger(levelStr string) domain.Logger {
	return New(levelStr, "console", os.Stdout)
}

// New creates a logger with an explicit format ("json" or "console") and sink.
func New(levelStr, format string, w io.Writer) *AppLogger {
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: true}
	}
	zl := zerolog.New(w).
		Level(parseLogLevel(levelStr)).
		With().
		Timestamp().
		Logger()
	return &AppLogger{logger: zl}
}

// With returns a child logger that always carries the given fields.
func (l *AppLogger) With(fields ...interface{}) *AppLogger {
	ctx := l.logger.With()
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if i+1 < len(fields) {
			ctx = ctx.Interface(key, fields[i+1])
		} else {
			ctx = ctx.Interface(key, nil)
		}
	}
	return &AppLogger{logger: ctx.Logger()}
}

// Info logs an info message
func (l *AppLogger) Info(msg string, fields ...interface{}) {
	withFields(l.logger.Info(), fields).Msg(msg)
}

// Error logs an error message
func (l *AppLogger) Error(msg string, err error, fields ...interface{}) {
	withFields(l.logger.Error().Err(err), fields).Msg(msg)
}

// Debug logs a debug message
func (l *AppLogger) Debug(msg string, fields ...interface{}) {
	withFields(l.logger.Debug(), fields).Msg(msg)
}

// Warn logs a warning message
func (l *AppLogger) Warn(msg string, fields ...interface{}) {
	withFields(l.logger.Warn(), fields).Msg(msg)
}

// withFields attaches alternating key/value pairs; a dangling key gets nil.
func withFields(e *zerolog.Event, fields []interface{}) *zerolog.Event {
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if i+1 < len(fields) {
			e = e.Interface(key, fields[i+1])
		} else {
			e = e.Interface(key, nil)
		}
	}
	return e
}

// parseLogLevel converts string log level to a zerolog level
func parseLogLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Nop returns a logger that discards everything.
func Nop() domain.Logger {
	return &AppLogger{logger: zerolog.Nop()}
}
