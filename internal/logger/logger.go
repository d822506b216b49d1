// Package logger provides the logging abstraction used by the persistence
// layer. It ships adapters for log/slog and go.uber.org/zap; any type with
// the four leveled methods can be plugged in.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger defines the leveled, key-value structured logging interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. It is the default when no logger is set.
type NoopLogger struct{}

func (*NoopLogger) Debug(string, ...any) {}
func (*NoopLogger) Info(string, ...any)  {}
func (*NoopLogger) Warn(string, ...any)  {}
func (*NoopLogger) Error(string, ...any) {}

// SlogAdapter wraps a non-nil *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a Logger backed by l.
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: l}
}

func (a *SlogAdapter) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }

// New builds a logger for a backend name ("slog" or "zap") at a level
// ("debug", "info", "warn", "error"). format selects slog's "text" or
// "json" handler writing to w; zap always writes JSON to stderr. The
// returned flush func is never nil.
func New(backend, level, format string, w io.Writer) (Logger, func() error, error) {
	switch backend {
	case "zap":
		z, err := NewZapProduction(level)
		if err != nil {
			return nil, nil, fmt.Errorf("zap logger: %w", err)
		}
		return z, z.Sync, nil
	case "", "slog":
	default:
		return nil, nil, fmt.Errorf("unknown logging backend %q", backend)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return NewSlogAdapter(slog.New(h)), func() error { return nil }, nil
}

// With returns a Logger that prepends args to every record.
func With(l Logger, args ...any) Logger {
	if len(args) == 0 {
		return l
	}
	return &withLogger{base: l, args: args}
}

type withLogger struct {
	base Logger
	args []any
}

func (w *withLogger) merge(args []any) []any {
	out := make([]any, 0, len(w.args)+len(args))
	out = append(out, w.args...)
	return append(out, args...)
}

func (w *withLogger) Debug(msg string, args ...any) { w.base.Debug(msg, w.merge(args)...) }
func (w *withLogger) Info(msg string, args ...any)  { w.base.Info(msg, w.merge(args)...) }
func (w *withLogger) Warn(msg string, args ...any)  { w.base.Warn(msg, w.merge(args)...) }
func (w *withLogger) Error(msg string, args ...any) { w.base.Error(msg, w.merge(args)...) }
