package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Level represents a log level
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a level string
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is the application logger
type Logger struct {
	level  *slog.LevelVar
	file   *os.File
	logger *slog.Logger
}

// Config contains logger configuration
type Config struct {
	Level   string
	File    string
	Format  string // text or json
	Console bool
}

// New creates a new logger
func New(cfg Config) (*Logger, error) {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(ParseLevel(cfg.Level).slog())

	var writers []io.Writer

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		writers = append(writers, f)
	}

	if cfg.Console || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	opts := &slog.HandlerOptions{Level: l.level, ReplaceAttr: redact}
	w := io.MultiWriter(writers...)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		l.logger = slog.New(slog.NewTextHandler(w, opts))
	case "json":
		l.logger = slog.New(slog.NewJSONHandler(w, opts))
	default:
		l.Close()
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return l, nil
}

// NewWriter creates a text logger writing to w, mostly for tests
func NewWriter(w io.Writer, level Level) *Logger {
	l := &Logger{level: new(slog.LevelVar)}
	l.level.Set(level.slog())
	l.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l.level, ReplaceAttr: redact}))
	return l
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewWriter(io.Discard, LevelError)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	switch strings.ToLower(a.Key) {
	case "password", "passwd", "secret":
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// Close closes the logger
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil || l.logger == nil {
		return
	}
	if !l.logger.Enabled(context.Background(), level.slog()) {
		return
	}
	l.logger.Log(context.Background(), level.slog(), fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// With returns a logger that adds key/value pairs to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{level: l.level, logger: l.logger.With(args...)}
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	switch l.level.Level() {
	case slog.LevelDebug:
		return LevelDebug
	case slog.LevelWarn:
		return LevelWarn
	case slog.LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// Default logger for package-level functions
var defaultLogger *Logger

// SetDefault replaces the default logger, for this package and for slog.
// A nil logger restores the discarding default of this package.
func SetDefault(l *Logger) {
	defaultLogger = l
	if l != nil {
		slog.SetDefault(l.logger)
	}
}

// Default returns the package logger, discarding output until SetDefault is called
func Default() *Logger {
	if defaultLogger == nil {
		return Discard()
	}
	return defaultLogger
}

// Debug logs a debug message to the default logger
func Debug(format string, args ...interface{}) {
	Default().Debug(format, args...)
}

// Info logs an info message to the default logger
func Info(format string, args ...interface{}) {
	Default().Info(format, args...)
}

// Warn logs a warning message to the default logger
func Warn(format string, args ...interface{}) {
	Default().Warn(format, args...)
}

// Error logs an error message to the default logger
func Error(format string, args ...interface{}) {
	Default().Error(format, args...)
}
