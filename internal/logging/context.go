package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	suiteIDKey
	scriptIDKey
)

// WithRunID returns a context with the testing-run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithSuiteID returns a context with the result-suite ID set.
func WithSuiteID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, suiteIDKey, id)
}

// WithScriptID returns a context with the script (sequence) ID set.
func WithScriptID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scriptIDKey, id)
}

// RunID extracts the testing-run ID from the context, or "" if absent.
func RunID(ctx context.Context) string {
	v, _ := ctx.Value(runIDKey).(string)
	return v
}

// SuiteID extracts the result-suite ID from the context, or "" if absent.
func SuiteID(ctx context.Context) string {
	v, _ := ctx.Value(suiteIDKey).(string)
	return v
}

// ScriptID extracts the script ID from the context, or "" if absent.
func ScriptID(ctx context.Context) string {
	v, _ := ctx.Value(scriptIDKey).(string)
	return v
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := RunID(ctx); v != "" {
		r.AddAttrs(slog.String("run_id", v))
	}
	if v := SuiteID(ctx); v != "" {
		r.AddAttrs(slog.String("suite_id", v))
	}
	if v := ScriptID(ctx); v != "" {
		r.AddAttrs(slog.String("script_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
