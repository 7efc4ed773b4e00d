package brepq

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with brepq-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithSession adds a session id field to the logger.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session", id),
	}
}

// WithContextID adds a context id field to the logger.
func (l *Logger) WithContextID(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("context", id),
	}
}

// WithSource adds a source (path or blob name) field to the logger.
func (l *Logger) WithSource(source string) *Logger {
	return &Logger{
		Logger: l.Logger.With("source", source),
	}
}

// LogLoad logs a geometry load.
func (l *Logger) LogLoad(ctx context.Context, source string, entities int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"source", source,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "geometry loaded",
			"source", source,
			"entities", entities,
			"duration", d,
		)
	}
}

// LogWrite logs a geometry write.
func (l *Logger) LogWrite(ctx context.Context, target string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "write failed",
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "geometry written",
			"target", target,
		)
	}
}

// LogInit logs the initialization of one context.
func (l *Logger) LogInit(ctx context.Context, surfaces, volumes int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "init failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "context initialized",
			"surfaces", surfaces,
			"volumes", volumes,
			"duration", d,
		)
	}
}

// LogInitialize logs a manager initialization across n contexts.
func (l *Logger) LogInitialize(ctx context.Context, contexts int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "initialize failed",
			"contexts", contexts,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "manager initialized",
			"contexts", contexts,
			"duration", d,
		)
	}
}

// LogProperties logs a property parse.
func (l *Logger) LogProperties(ctx context.Context, keywords []string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "property parse failed",
			"keywords", keywords,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "properties parsed",
			"keywords", keywords,
		)
	}
}

// LogUnhandledKeywords warns about group keywords that no property claims.
func (l *Logger) LogUnhandledKeywords(ctx context.Context, keywords []string) {
	if len(keywords) == 0 {
		return
	}
	l.WarnContext(ctx, "group names use unregistered keywords",
		"keywords", keywords,
	)
}

// LogClose logs session teardown.
func (l *Logger) LogClose(ctx context.Context, contexts int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"contexts", contexts,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "closed",
			"contexts", contexts,
		)
	}
}
