package plug

import (
	"fmt"
	"net/http"

	"authplug/internal/observability/logging"
	"authplug/internal/observability/metrics"
)

// OptName holds the dispatcher name in the configuration handed to the plug.
const OptName = "plug.name"

// Dispatcher wires a plug into an HTTP handler chain
type Dispatcher struct {
	name    string
	plug    Plug
	config  Config
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewDispatcher runs the plug's Init and returns a dispatcher for it.
func NewDispatcher(name string, p Plug, cfg Config, logger *logging.Logger, metrics *metrics.Collector) (*Dispatcher, error) {
	cfg, err := Init(p, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s plug: %w", name, err)
	}
	cfg = cfg.With(OptName, name)

	return &Dispatcher{
		name:    name,
		plug:    p,
		config:  cfg,
		logger:  logger.WithModule("plug." + name),
		metrics: metrics,
	}, nil
}

// Name returns the name of the dispatched plug
func (d *Dispatcher) Name() string {
	return d.name
}

// Plug returns the dispatched plug
func (d *Dispatcher) Plug() Plug {
	return d.plug
}

// Config returns the configuration produced by the plug's Init
func (d *Dispatcher) Config() Config {
	return d.config
}

// GetMiddleware returns an http.Handler middleware that runs the plug for every request
func (d *Dispatcher) GetMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.LoggerFromContext(ctx)
		if logger == nil {
			logger = d.logger
		}

		// Earlier plugs in the chain share the same conn
		conn := ConnFromContext(ctx)
		if conn == nil {
			conn = NewConn(w, r)
			r = r.WithContext(ContextWithConn(ctx, conn))
			conn.Request = r
		}

		resolved := conn.CurrentIdentity() != nil
		if err := Call(d.plug, conn, d.config); err != nil {
			logger.Error("Plug dispatch failed", "plug", d.name, logging.Err(err))
			d.metrics.RecordAuthentication(d.name, false)
			http.Error(w, "Authentication unavailable", http.StatusInternalServerError)
			return
		}

		if !resolved {
			identity := conn.CurrentIdentity()
			if identity != nil {
				logger.Debug("Identity resolved", "plug", d.name, "subject", identity.Subject)
			} else {
				logger.Debug("No identity resolved", "plug", d.name)
			}
			d.metrics.RecordAuthentication(d.name, identity != nil)
		}

		next.ServeHTTP(w, r)
	})
}

// ActiveName returns the name of the dispatcher that last ran for conn.
func ActiveName(conn *Conn) string {
	return conn.Config().String(OptName, "unknown")
}
