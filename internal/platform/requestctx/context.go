// Package requestctx carries per-request values (logger, trace ids, signed-in
// user) through context.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey struct{}
	traceKey  struct{}
	userKey   struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo is the active span's identity.
type TraceInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger returns ctx carrying logger. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(orBackground(ctx), loggerKey{}, logger)
}

// Logger returns the context logger, or the no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := orBackground(ctx).Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return noopLogger
}

// NoopLogger is the logger Logger falls back to.
func NoopLogger() *zap.Logger { return noopLogger }

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	info, ok := orBackground(ctx).Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID is "" outside a traced request.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithUserID records the signed-in shopper for log enrichment.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(orBackground(ctx), userKey{}, userID)
}

func UserID(ctx context.Context) string {
	id, _ := orBackground(ctx).Value(userKey{}).(string)
	return id
}
