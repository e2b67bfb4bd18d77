package server

import (
	"context"
	"crypto/tls"
	"fmt"

	"authplug/internal/authz"
	"authplug/internal/authz/simple"
	"authplug/internal/authz/spicedb"
	"authplug/internal/config"
	"authplug/internal/login/oidc"
	"authplug/internal/observability"
	"authplug/internal/observability/logging"
	"authplug/internal/plug/chain"
	"authplug/internal/proxy/router"
	tlsconfig "authplug/internal/tls"
)

// NewFromConfig creates a new server from configuration
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	obs, err := observability.NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	return newWithProvider(ctx, cfg, obs)
}

func newWithProvider(ctx context.Context, cfg *config.Config, obs *observability.Provider) (*Server, error) {
	logger := obs.Logger

	// Initialize TLS configuration
	var tlsSetup *tlsconfig.Config
	var tlsCfg *tls.Config
	var err error
	if cfg.TLS.Enabled {
		tlsSetup = &tlsconfig.Config{
			Logger:      logger,
			RootCAPath:  cfg.TLS.CAPath,
			AuthCAFiles: cfg.Auth.MTLS.CAPaths,
			CertPath:    cfg.TLS.CertPath,
			KeyPath:     cfg.TLS.KeyPath,
		}

		tlsCfg, err = tlsSetup.GetTLSConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS configuration: %w", err)
		}
	}

	plugs, err := chain.NewFromConfig(ctx, cfg, tlsSetup, logger, obs.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize plug chain: %w", err)
	}

	authorizer, err := newAuthorizer(cfg, logger)
	if err != nil {
		_ = plugs.Close()
		return nil, err
	}

	routerConfig := router.Config{
		UpstreamURL:     cfg.Upstream.URL,
		UpstreamTimeout: cfg.Upstream.Timeout,
		Rules:           convertRules(cfg.Rules),
	}

	if cfg.Auth.OIDC.Enabled {
		login, err := oidc.New(ctx, oidc.Config{
			Issuer:        cfg.Auth.OIDC.Issuer,
			ClientID:      cfg.Auth.OIDC.ClientID,
			ClientSecret:  cfg.Auth.OIDC.ClientSecret,
			RedirectURL:   cfg.Auth.OIDC.RedirectURL,
			Scopes:        cfg.Auth.OIDC.Scopes,
			CookieSecret:  cfg.Auth.OIDC.CookieSecret,
			PostLogoutURL: cfg.Auth.OIDC.PostLogoutURL,
		}, logger, obs.Metrics)
		if err != nil {
			_ = plugs.Close()
			return nil, fmt.Errorf("failed to initialize OIDC login: %w", err)
		}
		routerConfig.Login = login
		routerConfig.CallbackPath = oidc.CallbackPath(cfg.Auth.OIDC.RedirectURL)
	}

	proxyRouter := router.New(routerConfig, authorizer, logger, obs.Metrics)

	// observability -> plugs -> router
	handler := obs.Middleware(plugs.Middleware(proxyRouter))

	srv := New(Config{
		Address:         cfg.Server.Address,
		MetricsAddress:  cfg.Metrics.Address,
		TLSConfig:       tlsCfg,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, handler, obs.MetricsHandler(), logger)
	srv.OnStop(plugs.Close)
	return srv, nil
}

// newAuthorizer creates the configured authorizer
func newAuthorizer(cfg *config.Config, logger *logging.Logger) (authz.Authorizer, error) {
	switch cfg.Authz.Type {
	case "spicedb":
		spiceCfg := spicedb.Config{
			Endpoint:     cfg.Authz.SpiceDB.Endpoint,
			Insecure:     cfg.Authz.SpiceDB.Insecure,
			Token:        cfg.Authz.SpiceDB.Token,
			ResourceType: cfg.Authz.SpiceDB.ResourceType,
			ResourceID:   cfg.Authz.SpiceDB.ResourceID,
			SubjectType:  cfg.Authz.SpiceDB.SubjectType,
		}
		client, err := spicedb.NewClient(spiceCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("SpiceDB authorizer enabled", "endpoint", spiceCfg.Endpoint, "insecure", spiceCfg.Insecure)
		return spicedb.New(spiceCfg, client, logger), nil
	case "simple", "":
		return simple.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown authorizer type %q", cfg.Authz.Type)
	}
}

// convertRules converts config.Rule to router.Rule
func convertRules(configRules []config.Rule) []router.Rule {
	routerRules := make([]router.Rule, len(configRules))
	for i, rule := range configRules {
		routerRules[i] = router.Rule{
			Name:        rule.Name,
			Action:      rule.Action,
			Paths:       rule.Paths,
			MatchPrefix: rule.MatchPrefix,
			Methods:     rule.Methods,
			Permission:  rule.Permission,
			Resource:    rule.Resource,
		}
	}
	return routerRules
}
