package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
)

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

// Configure replaces the global logger with a JSON logger writing to w at the given level.
func Configure(w io.Writer, level string) *slog.Logger {
	l := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	logger.Store(l)
	return l
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels. Anything else is info.
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

func Logger() *slog.Logger {
	return logger.Load()
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return Logger().With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// LoggerFromContext adds request_id if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	if reqID == "" {
		return Logger()
	}
	return Logger().With("request_id", reqID)
}
