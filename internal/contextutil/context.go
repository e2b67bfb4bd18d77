// Package contextutil collects the request-scoped values the proxy threads
// through a request: the logger, trace ids and the identity resolved by the
// plug chain.
package contextutil

import (
	"context"

	"authplug/internal/auth"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"
)

// Logger returns the request logger, or fallback when none was attached
func Logger(ctx context.Context, fallback *logging.Logger) *logging.Logger {
	if logger := logging.LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return fallback
}

// GetIdentity retrieves the identity assigned by the plug chain
func GetIdentity(ctx context.Context) *auth.Identity {
	return plug.IdentityFromContext(ctx)
}

// GetAuthType returns the kind of plug that resolved the identity
func GetAuthType(ctx context.Context) auth.AuthType {
	if identity := GetIdentity(ctx); identity != nil {
		return auth.AuthType(identity.Provider)
	}
	return ""
}

// EnrichContext adds a trace id (unless present), a fresh span id and a
// logger carrying both.
func EnrichContext(ctx context.Context, logger *logging.Logger) (context.Context, *logging.Logger) {
	traceID := logging.GetTraceIDFromContext(ctx)
	if traceID == "" {
		traceID = logging.NewTraceID()
		ctx = logging.ContextWithTraceID(ctx, traceID)
	}

	spanID := logging.NewSpanID()
	ctx = logging.ContextWithSpanID(ctx, spanID)

	if logger != nil {
		logger = logger.With(
			logging.TraceIDKey, traceID,
			logging.SpanIDKey, spanID,
		)
		ctx = logging.ContextWithLogger(ctx, logger)
	}

	return ctx, logger
}
