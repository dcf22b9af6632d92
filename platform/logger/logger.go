// Package logger wraps log/slog with the event helpers used across the
// API and the worker.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

// Context keys whose values WithContext copies onto log lines.
const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

var contextKeys = []contextKey{RequestIDKey, UserIDKey, TraceIDKey}

// Logger is a slog.Logger with domain helpers.
type Logger struct {
	*slog.Logger
}

// New logs to stdout: text at debug level in development, JSON at info elsewhere.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext attaches the request, user and trace IDs found in ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var attrs []any
	for _, key := range contextKeys {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.With(attrs...)}
}

// HTTPRequest logs a served request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request", httpAttrs(method, path, status, clientIP, slog.Float64("latency_ms", latencyMs))...)
}

// HTTPError logs the error behind a 5xx response.
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error", httpAttrs(method, path, status, clientIP, slog.String("error", err.Error()))...)
}

func httpAttrs(method, path string, status int, clientIP string, extra slog.Attr) []any {
	return []any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("client_ip", clientIP),
		extra,
	}
}

// TaskEvent logs a lifecycle step of an AI task. A non-nil err raises the
// line to warn.
func (l *Logger) TaskEvent(event, taskID, claimID, taskType string, retryCount int, err error) {
	level := slog.LevelInfo
	attrs := []any{
		slog.String("event", event),
		slog.Group("task",
			slog.String("id", taskID),
			slog.String("type", taskType),
			slog.Int("retry_count", retryCount),
		),
		slog.String("claim_id", claimID),
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.Log(context.Background(), level, "ai_task", attrs...)
}

// Alert logs an operator-facing condition such as an SLO breach.
func (l *Logger) Alert(name string, args ...any) {
	l.Error("alert", append([]any{slog.String("alert", name)}, args...)...)
}

// DatabaseError logs a failed statement that the caller chose not to return.
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error", slog.String("operation", operation), slog.String("error", err.Error()))
}

// RateLimitExceeded logs a request turned away with 429.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", slog.String("client_ip", clientIP), slog.String("path", path))
}
