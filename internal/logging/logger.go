package logging

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// levelOff is above every level a caller can log at.
const levelOff = LevelError + 4

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Logger is an slog.Logger whose level can be changed after creation. Loggers
// derived with WithComponent or WithFields share the parent's level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// Config selects the handler and level of a Logger.
type Config struct {
	Level  Level
	Output io.Writer
	// JSON switches from the console format to slog's JSON handler.
	JSON bool
	// TimeFormat applies to the console format only.
	TimeFormat string
}

// DefaultConfig logs at info level to stderr in the console format.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// New builds a Logger from cfg. A nil Output means stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	lv := new(slog.LevelVar)
	lv.Set(cfg.Level)
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		ch := NewConsoleHandler(out, opts)
		if cfg.TimeFormat != "" {
			ch.timeFormat = cfg.TimeFormat
		}
		h = ch
	}
	return &Logger{Logger: slog.New(h), level: lv}
}

// Nop returns a logger that drops every record.
func Nop() *Logger {
	return New(Config{Level: levelOff, Output: io.Discard})
}

// Default returns the process logger. Until SetDefault is called it is a
// console logger built from DefaultConfig.
func Default() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// SetDefault replaces the process logger. Passing nil restores the lazily
// built default.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// ParseLevel maps a config string to a Level. Unknown strings return
// LevelInfo together with an error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// SetLevel changes the level of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level)
}

// GetLevel returns the current level.
func (l *Logger) GetLevel() Level {
	return l.level.Level()
}

// WithComponent tags records with component=name. The console handler
// prints it in the line header.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with("component", name)
}

// WithFields attaches fields in key order, so output is stable.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Debug logs on the default logger.
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs on the default logger.
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs on the default logger.
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs on the default logger.
func Error(msg string, args ...any) { Default().Error(msg, args...) }

// WithComponent returns a component logger derived from the default logger.
// It keeps the logger that was default at call time.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}
