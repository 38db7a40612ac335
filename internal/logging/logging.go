// Package logging provides structured logging for the cablewatch application.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Component loggers resolve the active handler on every record, so
// package-level loggers created before Init still honor the configured
// level and format.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("sampler")
//	log.Info("sampler started", "interval", interval)
//
//	// Log with error context
//	log.Error("cycle failed", "kind", errors.Kind(err), "error", err)
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelCritical is one step above slog's built-in error level. It maps the
// CRITICAL verbosity of the LOG_LEVEL setting, used for fatal startup
// conditions.
const LevelCritical = slog.LevelError + 4

// active holds the configured slog.Handler, swapped by Init.
var active atomic.Pointer[slog.Handler]

// Logger is the global logger instance. Log methods forward to the
// handler active at the time of the call.
var Logger *slog.Logger

func init() {
	h := newHandler(slog.LevelInfo, false)
	active.Store(&h)
	Logger = slog.New(proxyHandler{})
	slog.SetDefault(Logger)
}

// Init configures the active handler with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	h := newHandler(level, jsonFormat)
	active.Store(&h)
}

// InitWithHandler swaps in a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	active.Store(&handler)
}

func newHandler(level slog.Level, jsonFormat bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Render the custom critical level by name
			if a.Key == slog.LevelKey {
				if lv, ok := a.Value.Any().(slog.Level); ok && lv >= LevelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	}

	if jsonFormat {
		return slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.NewTextHandler(os.Stdout, opts)
}

// proxyHandler forwards every record to the active handler, replaying
// accumulated attrs and groups so loggers built before Init stay live.
type proxyHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h proxyHandler) resolve() slog.Handler {
	base := *active.Load()
	for _, op := range h.ops {
		base = op(base)
	}
	return base
}

func (h proxyHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.resolve().Enabled(ctx, level)
}

func (h proxyHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h proxyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	ops = append(ops, func(base slog.Handler) slog.Handler {
		return base.WithAttrs(attrs)
	})
	return proxyHandler{ops: ops}
}

func (h proxyHandler) WithGroup(name string) slog.Handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	ops = append(ops, func(base slog.Handler) slog.Handler {
		return base.WithGroup(name)
	})
	return proxyHandler{ops: ops}
}

// ParseLevel maps a LOG_LEVEL string (DEBUG/INFO/WARNING/ERROR/CRITICAL)
// to a slog level. Returns false if the name is not recognized.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARNING", "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	case "CRITICAL":
		return LevelCritical, true
	default:
		return 0, false
	}
}

// With returns a new logger with additional attributes.
// These attributes are included in every log entry from the returned logger.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("writer")
//	log.Info("started") // Output: time=... level=INFO component=writer msg=started
func Component(name string) *slog.Logger {
	return Logger.With("component", name)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs at warning level.
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// Critical logs at critical level.
func Critical(msg string, args ...any) {
	Logger.Log(context.Background(), LevelCritical, msg, args...)
}
