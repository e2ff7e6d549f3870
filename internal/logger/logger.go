package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"memberconsole/internal/config"
	"memberconsole/internal/model"
	"memberconsole/internal/monitoring"
)

// Logger wraps slog.Logger with the console's context helpers.
type Logger struct {
	*slog.Logger
}

// New builds the process logger. Records fan out to the console writer and,
// when telemetry is enabled, to the OpenTelemetry log bridge.
func New(cfg config.Config, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Server.LogLevel),
		AddSource: cfg.IsProduction(),
	}

	var console slog.Handler
	if cfg.IsProduction() {
		console = slog.NewJSONHandler(w, opts)
	} else {
		console = slog.NewTextHandler(w, opts)
	}

	handler := console
	if cfg.Telemetry.Enabled {
		handler = NewMultiHandler(monitoring.NewOTelHandler(opts), console)
	}

	logger := slog.New(handler).With(
		"service", cfg.Telemetry.ServiceName,
		"environment", cfg.Server.Environment,
	)
	slog.SetDefault(logger)

	return &Logger{Logger: logger}
}

// ParseLevel maps debug|info|warn|error onto slog levels; anything else is info.
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

// Component tags every record with the emitting package.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With("component", name)
}

// WithPrincipal creates a logger carrying the acting principal.
func (l *Logger) WithPrincipal(p *model.Principal) *slog.Logger {
	if p == nil {
		return l.Logger
	}
	args := []any{"user_id", p.ID, "role", p.Role.String()}
	if p.ChapterID != "" {
		args = append(args, "chapter_id", p.ChapterID)
	}
	return l.With(args...)
}

// WithError creates a logger with error context.
func (l *Logger) WithError(err error) *slog.Logger {
	if err == nil {
		return l.Logger
	}
	return l.With("error", err.Error())
}

// MultiHandler sends records to multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		// A failing sink must not starve the others.
		_ = handler.Handle(ctx, record.Clone())
	}
	return nil
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, handler.WithAttrs(attrs))
	}
	return &MultiHandler{handlers: next}
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		next = append(next, handler.WithGroup(name))
	}
	return &MultiHandler{handlers: next}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
