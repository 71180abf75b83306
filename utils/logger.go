package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fluent/fluent-logger-golang/fluent"
	"github.com/lmittmann/tint"
)

// Logger provides leveled logging throughout the application.
// Messages are printf-style; records are emitted through slog so they can
// be fanned out to more than one sink.
type Logger struct {
	slog   *slog.Logger
	fluent *fluent.Fluent
}

// LoggerConfig controls where and how much the Logger writes.
type LoggerConfig struct {
	Writer io.Writer
	Level  slog.Level

	// Fluent Bit shipping is enabled when FluentHost is set.
	FluentHost string
	FluentPort int
	FluentTag  string
}

// NewLogger creates a Logger writing coloured text to stdout at info level.
func NewLogger() *Logger {
	l, _ := NewLoggerWithConfig(LoggerConfig{Level: slog.LevelInfo})
	return l
}

// NewLoggerWithConfig creates a Logger from cfg. The stdout sink is always
// present; the Fluent Bit sink is added on top when configured.
func NewLoggerWithConfig(cfg LoggerConfig) (*Logger, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	handlers := []slog.Handler{
		tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: "2006-01-02 15:04:05",
		}),
	}

	var fc *fluent.Fluent
	if cfg.FluentHost != "" {
		tag := cfg.FluentTag
		if tag == "" {
			tag = "house-finder"
		}
		var err error
		fc, err = fluent.New(fluent.Config{
			FluentHost: cfg.FluentHost,
			FluentPort: cfg.FluentPort,
			TagPrefix:  tag,
			Async:      true,
		})
		if err != nil {
			return &Logger{slog: slog.New(handlers[0])}, fmt.Errorf("logger: create fluent client: %w", err)
		}
		handlers = append(handlers, &fluentHandler{client: fc, level: cfg.Level})
	}

	var h slog.Handler = handlers[0]
	if len(handlers) > 1 {
		h = fanoutHandler(handlers)
	}
	return &Logger{slog: slog.New(h), fluent: fc}, nil
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Info(format string, args ...any) {
	l.slog.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.slog.Debug(fmt.Sprintf(format, args...))
}

// With returns a Logger that attaches the given key/value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), fluent: l.fluent}
}

// Close flushes the Fluent Bit client, if any.
func (l *Logger) Close() error {
	if l.fluent == nil {
		return nil
	}
	return l.fluent.Close()
}

type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// fluentHandler posts each record to Fluent Bit, tagged by level.
type fluentHandler struct {
	client *fluent.Fluent
	level  slog.Level
	attrs  []slog.Attr
}

func (h *fluentHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *fluentHandler) Handle(_ context.Context, r slog.Record) error {
	data := make(map[string]any, len(h.attrs)+r.NumAttrs()+3)
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	data["level"] = strings.ToLower(r.Level.String())
	data["message"] = r.Message
	data["timestamp"] = r.Time.UTC().Format(time.RFC3339Nano)

	return h.client.Post(strings.ToLower(r.Level.String()), data)
}

func (h *fluentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &fluentHandler{client: h.client, level: h.level, attrs: merged}
}

func (h *fluentHandler) WithGroup(string) slog.Handler { return h }
