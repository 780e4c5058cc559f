package main

import (
	"fmt"
	"io"
	logpkg "log"
	"os"
	"strings"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
)

// LogLevel defines severity for logger output.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// ParseLogLevel maps a flag value to a level. Empty means info.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "", "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger provides leveled logging.
type Logger struct {
	level  LogLevel
	logger *logpkg.Logger
}

// NewLogger creates a logger with desired level and prefix.
func NewLogger(level LogLevel, prefix string) *Logger {
	return NewLoggerTo(os.Stdout, level, prefix)
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, level LogLevel, prefix string) *Logger {
	return &Logger{
		level:  level,
		logger: logpkg.New(w, prefix, logpkg.LstdFlags|logpkg.Lmicroseconds),
	}
}

// SetLevel adjusts current logging level.
func (l *Logger) SetLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.level = level
}

func (l *Logger) logf(target LogLevel, format string, args ...any) {
	if l == nil || target > l.level {
		return
	}
	l.logger.Output(3, fmt.Sprintf(format, args...))
}

// Debugf prints debug messages.
func (l *Logger) Debugf(format string, args ...any) {
	l.logf(LogLevelDebug, format, args...)
}

// Infof prints info messages.
func (l *Logger) Infof(format string, args ...any) {
	l.logf(LogLevelInfo, format, args...)
}

// Warnf prints warning messages.
func (l *Logger) Warnf(format string, args ...any) {
	l.logf(LogLevelWarn, format, args...)
}

// Errorf prints error messages.
func (l *Logger) Errorf(format string, args ...any) {
	l.logf(LogLevelError, format, args...)
}

var defaultLogger = NewLogger(LogLevelInfo, "[2PC] ")

// GetLogger returns the global logger.
func GetLogger() *Logger {
	return defaultLogger
}

// SetLogger replaces the global logger (primarily for tests).
func SetLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLogger = l
}

// eventLevel picks the log level of a session event.
func eventLevel(kind core.EventKind) LogLevel {
	switch kind {
	case core.EventViolation:
		return LogLevelError
	case core.EventLost:
		return LogLevelWarn
	case core.EventSend, core.EventDeliver, core.EventProtocol, core.EventTimer:
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// installEventLogging writes every session event through the global logger.
func installEventLogging(b *hooks.PluginBroker) error {
	if b == nil {
		return fmt.Errorf("plugin broker is nil")
	}
	b.RegisterEvent(func(ctx *hooks.EventContext) error {
		ev := ctx.Event
		GetLogger().logf(eventLevel(ev.Kind), "%s", ev.String())
		return nil
	})
	return nil
}
