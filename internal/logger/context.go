package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	RequestID     string    // RPC request ID
	Method        string    // RPC method name
	TransactionID string    // Transaction UUID, if the request is scoped to one
	Peer          string    // Client peer identifier
	StartTime     time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for an accepted request
func NewLogContext(requestID, method string) *LogContext {
	return &LogContext{
		RequestID: requestID,
		Method:    method,
		StartTime: time.Now(),
	}
}

// appendContextFields prepends LogContext fields to args so they appear
// first in output.
func appendContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 8+len(args))

	if lc.RequestID != "" {
		ctxArgs = append(ctxArgs, KeyRequestID, lc.RequestID)
	}
	if lc.Method != "" {
		ctxArgs = append(ctxArgs, KeyMethod, lc.Method)
	}
	if lc.TransactionID != "" {
		ctxArgs = append(ctxArgs, KeyTransactionID, lc.TransactionID)
	}
	if lc.Peer != "" {
		ctxArgs = append(ctxArgs, KeyPeer, lc.Peer)
	}

	return append(ctxArgs, args...)
}
