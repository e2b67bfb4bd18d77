// Package observability wires logging and metrics into the request path.
package observability

import (
	"net/http"
	"time"

	"authplug/internal/config"
	"authplug/internal/contextutil"
	"authplug/internal/httputils"
	"authplug/internal/observability/logging"
	"authplug/internal/observability/metrics"
)

// Provider provides observability capabilities
type Provider struct {
	Logger  *logging.Logger
	Metrics *metrics.Collector
}

// NewProvider creates a new observability provider
func NewProvider(cfg *config.Config) (*Provider, error) {
	logger, err := logging.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, err
	}

	return &Provider{
		Logger:  logger,
		Metrics: metrics.NewCollector(),
	}, nil
}

// Middleware creates an HTTP middleware for request observation
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ctx, logger := contextutil.EnrichContext(r.Context(), p.Logger)

		wrapper := httputils.NewStatusRecorder(w)
		wrapper.Header().Set("X-Trace-ID", logging.GetTraceIDFromContext(ctx))

		logger.Info("Request started",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		r = r.WithContext(ctx)
		next.ServeHTTP(wrapper, r)

		duration := time.Since(startTime)
		p.Metrics.RecordRequest(r.Method, routeLabel(r), wrapper.Status, duration)

		logger.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.Status,
			"duration_ms", duration.Milliseconds(),
			"bytes_written", wrapper.Bytes,
		)
	})
}

// MetricsHandler returns an HTTP handler for exposing metrics
func (p *Provider) MetricsHandler() http.Handler {
	return metrics.Handler()
}

// routeLabel keeps the path label bounded: only the proxy's own endpoints are
// reported verbatim.
func routeLabel(r *http.Request) string {
	switch r.URL.Path {
	case "/auth/login", "/auth/logout", "/auth/me":
		return r.URL.Path
	}
	return "proxied"
}
