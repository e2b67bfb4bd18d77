// Package chain assembles the configured plugs into an ordered middleware chain.
package chain

import (
	"context"
	"fmt"
	"net/http"

	"authplug/internal/config"
	"authplug/internal/observability/logging"
	"authplug/internal/observability/metrics"
	"authplug/internal/plug"
	"authplug/internal/plug/bearer"
	"authplug/internal/plug/mtls"
	"authplug/internal/plug/session"
	"authplug/internal/plug/token"
	"authplug/internal/store"
	"authplug/internal/store/memory"
	"authplug/internal/store/redisstore"
	tlsutil "authplug/internal/tls"
)

// Chain runs a list of plug dispatchers in order for every request
type Chain struct {
	logger      *logging.Logger
	dispatchers []*plug.Dispatcher
	closer      func() error
}

// New creates a chain from already initialized dispatchers
func New(dispatchers []*plug.Dispatcher, logger *logging.Logger) *Chain {
	return &Chain{
		logger:      logger.WithModule("plug.chain"),
		dispatchers: dispatchers,
	}
}

// Middleware wraps next with every dispatcher. The first dispatcher runs first;
// the last one becomes the active plug for session management.
func (c *Chain) Middleware(next http.Handler) http.Handler {
	handler := next
	for i := len(c.dispatchers) - 1; i >= 0; i-- {
		handler = c.dispatchers[i].GetMiddleware(handler)
		c.logger.Debug("Added plug to middleware chain", "plug", c.dispatchers[i].Name())
	}
	return handler
}

// Dispatchers returns the dispatchers in execution order
func (c *Chain) Dispatchers() []*plug.Dispatcher {
	return c.dispatchers
}

// Close releases the backing store
func (c *Chain) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// NewFromConfig creates the store and every enabled plug. Plugs are ordered
// mtls, bearer, token, session so the most interactive mechanism ends up
// active for login and logout.
func NewFromConfig(ctx context.Context, cfg *config.Config, tlsConfig *tlsutil.Config, logger *logging.Logger, metrics *metrics.Collector) (*Chain, error) {
	logger = logger.WithModule("plug.factory")

	st, closer, err := NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Type == "redis" {
		logger.Info("Using redis store", "url", logging.RedactStringURL(cfg.Store.Redis.URL))
	}

	var dispatchers []*plug.Dispatcher
	add := func(name string, p plug.Plug) error {
		d, err := plug.NewDispatcher(name, p, plug.NewConfig(cfg.PlugOptions(name)), logger, metrics)
		if err != nil {
			return err
		}
		dispatchers = append(dispatchers, d)
		logger.Info("Plug enabled", "plug", name)
		return nil
	}

	build := func() error {
		if cfg.Auth.MTLS.Enabled {
			p, err := mtls.New(mtls.Config{
				CAPaths:         cfg.Auth.MTLS.CAPaths,
				TLSConfig:       tlsConfig,
				DevelopmentMode: cfg.DevelopmentMode(),
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize mtls plug: %w", err)
			}
			if err := add("mtls", p); err != nil {
				return err
			}
		}

		if cfg.Auth.Bearer.Enabled {
			p, err := bearer.New(ctx, bearer.Config{
				Issuer:   cfg.Auth.Bearer.Issuer,
				ClientID: cfg.Auth.Bearer.ClientID,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize bearer plug: %w", err)
			}
			if err := add("bearer", p); err != nil {
				return err
			}
		}

		if cfg.Auth.Token.Enabled {
			if err := add("token", token.New(st, logger)); err != nil {
				return err
			}
		}

		if cfg.Auth.Session.Enabled {
			if err := add("session", session.New(st, logger)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := build(); err != nil {
		_ = closer()
		return nil, err
	}

	if len(dispatchers) == 0 {
		logger.Warn("No plugs enabled")
	}

	c := New(dispatchers, logger)
	c.closer = closer
	return c, nil
}

// NewStore creates the configured store and a function releasing it
func NewStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	switch cfg.Store.Type {
	case "", "memory":
		st := memory.New()
		return st, st.Close, nil
	case "redis":
		st, err := redisstore.New(ctx, redisstore.Config{
			URL:       cfg.Store.Redis.URL,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}
