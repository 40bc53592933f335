package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"
)

// ContextKey is the key type for values this package puts on a context.
type ContextKey string

const (
	// CallerContextKey holds the authenticated service name.
	CallerContextKey ContextKey = "caller"

	// TraceIDKey holds the per-request trace ID.
	TraceIDKey ContextKey = "traceID"

	traceIDLength = 16
)

// SetTraceID adds a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID, or "" when none is set.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// SetCaller records the authenticated service name on the context.
func SetCaller(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, CallerContextKey, service)
}

// GetCaller retrieves the authenticated service name, or "".
func GetCaller(ctx context.Context) string {
	caller, ok := ctx.Value(CallerContextKey).(string)
	if !ok {
		return ""
	}
	return caller
}

func generateTraceID() string {
	b := make([]byte, traceIDLength)
	if n, err := rand.Read(b); err != nil || n != traceIDLength {
		slog.Error("failed to generate random trace ID", "error", err)
		// Time-based fallback, unique enough for log correlation.
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint64(b[8:], uint64(time.Now().Unix()))
	}
	return hex.EncodeToString(b)
}
