package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every setting when read from the environment
const EnvPrefix = "AUTHPLUG"

// Load loads the configuration from all sources and returns the merged result
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	Settings.PopulateViperDefaults(v)

	// Set up environment variable handling
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Load from config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// It's okay if the config file doesn't exist, but other errors should be reported
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	if config.RulesPath != "" {
		rules, err := LoadRules(config.RulesPath)
		if err != nil {
			return nil, err
		}
		config.Rules = rules
	}

	// Validate the configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// fromViper copies every setting out of v
func fromViper(v *viper.Viper) (*Config, error) {
	config := &Config{}
	var err error

	// Populate server configuration
	config.Server.Address = v.GetString("SERVER_ADDR")
	if config.Server.ShutdownTimeout, err = duration(v, "SHUTDOWN_TIMEOUT"); err != nil {
		return nil, err
	}

	// Populate metrics configuration
	config.Metrics.Address = v.GetString("METRICS_ADDR")

	// Populate TLS configuration
	config.TLS.Enabled = v.GetBool("TLS_ENABLED")
	config.TLS.CertPath = v.GetString("TLS_CERT_PATH")
	config.TLS.KeyPath = v.GetString("TLS_KEY_PATH")
	config.TLS.CAPath = v.GetString("TLS_CA_PATH")

	// Populate upstream configuration
	upstreamURL, err := url.Parse(v.GetString("UPSTREAM_URL"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	config.Upstream.URL = upstreamURL
	if config.Upstream.Timeout, err = duration(v, "UPSTREAM_TIMEOUT"); err != nil {
		return nil, err
	}

	config.Environment = v.GetString("ENVIRONMENT")

	// mTLS
	config.Auth.MTLS.Enabled = v.GetBool("AUTH_MTLS_ENABLED")
	config.Auth.MTLS.CAPaths = v.GetStringSlice("AUTH_MTLS_CA_PATHS")

	// Bearer
	config.Auth.Bearer.Enabled = v.GetBool("AUTH_BEARER_ENABLED")
	config.Auth.Bearer.Issuer = v.GetString("AUTH_BEARER_ISSUER")
	config.Auth.Bearer.ClientID = v.GetString("AUTH_BEARER_CLIENT_ID")

	// Token
	config.Auth.Token.Enabled = v.GetBool("AUTH_TOKEN_ENABLED")
	config.Auth.Token.SigningKey = v.GetString("AUTH_TOKEN_SIGNING_KEY")
	config.Auth.Token.Issuer = v.GetString("AUTH_TOKEN_ISSUER")
	config.Auth.Token.ResponseHeader = v.GetString("AUTH_TOKEN_RESPONSE_HEADER")
	if config.Auth.Token.TTL, err = duration(v, "AUTH_TOKEN_TTL"); err != nil {
		return nil, err
	}

	// Session
	config.Auth.Session.Enabled = v.GetBool("AUTH_SESSION_ENABLED")
	config.Auth.Session.CookieName = v.GetString("AUTH_SESSION_COOKIE_NAME")
	config.Auth.Session.CookieSecret = v.GetString("AUTH_SESSION_COOKIE_SECRET")
	config.Auth.Session.CookieDomain = v.GetString("AUTH_SESSION_COOKIE_DOMAIN")
	config.Auth.Session.CookieSecure = v.GetBool("AUTH_SESSION_COOKIE_SECURE")
	if config.Auth.Session.TTL, err = duration(v, "AUTH_SESSION_TTL"); err != nil {
		return nil, err
	}

	// OIDC login
	config.Auth.OIDC.Enabled = v.GetBool("AUTH_OIDC_ENABLED")
	config.Auth.OIDC.Issuer = v.GetString("AUTH_OIDC_ISSUER")
	config.Auth.OIDC.ClientID = v.GetString("AUTH_OIDC_CLIENT_ID")
	config.Auth.OIDC.ClientSecret = v.GetString("AUTH_OIDC_CLIENT_SECRET")
	config.Auth.OIDC.RedirectURL = v.GetString("AUTH_OIDC_REDIRECT_URL")
	config.Auth.OIDC.Scopes = v.GetStringSlice("AUTH_OIDC_SCOPES")
	config.Auth.OIDC.CookieSecret = v.GetString("AUTH_OIDC_COOKIE_SECRET")
	config.Auth.OIDC.PostLogoutURL = v.GetString("AUTH_OIDC_POST_LOGOUT_URL")

	// Store
	config.Store.Type = v.GetString("STORE_TYPE")
	config.Store.Redis.URL = v.GetString("STORE_REDIS_URL")
	config.Store.Redis.KeyPrefix = v.GetString("STORE_REDIS_KEY_PREFIX")

	// Populate authorization configuration
	config.Authz.Type = v.GetString("AUTHZ_TYPE")
	config.Authz.SpiceDB.Endpoint = v.GetString("AUTHZ_SPICEDB_ENDPOINT")
	config.Authz.SpiceDB.Insecure = v.GetBool("AUTHZ_SPICEDB_INSECURE")
	config.Authz.SpiceDB.Token = v.GetString("AUTHZ_SPICEDB_TOKEN")
	config.Authz.SpiceDB.ResourceType = v.GetString("AUTHZ_SPICEDB_RESOURCE_TYPE")
	config.Authz.SpiceDB.ResourceID = v.GetString("AUTHZ_SPICEDB_RESOURCE_ID")
	config.Authz.SpiceDB.SubjectType = v.GetString("AUTHZ_SPICEDB_SUBJECT_TYPE")

	config.RulesPath = v.GetString("RULES_PATH")

	// Populate observability configuration
	config.Observability.LogLevel = v.GetString("LOG_LEVEL")
	config.Observability.LogFormat = v.GetString("LOG_FORMAT")

	return config, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", strings.ToLower(key), err)
	}
	return d, nil
}

// DevelopmentMode reports whether the proxy runs in a development environment
func (c *Config) DevelopmentMode() bool {
	return strings.EqualFold(c.Environment, "development")
}

// PlugOptions returns the option map handed to the named plug
func (c *Config) PlugOptions(name string) map[string]any {
	switch name {
	case "session":
		return map[string]any{
			"cookie_name":   c.Auth.Session.CookieName,
			"cookie_secret": c.Auth.Session.CookieSecret,
			"cookie_domain": c.Auth.Session.CookieDomain,
			"cookie_secure": c.Auth.Session.CookieSecure,
			"session_ttl":   c.Auth.Session.TTL,
		}
	case "token":
		return map[string]any{
			"signing_key":     c.Auth.Token.SigningKey,
			"issuer":          c.Auth.Token.Issuer,
			"token_ttl":       c.Auth.Token.TTL,
			"response_header": c.Auth.Token.ResponseHeader,
		}
	}
	return map[string]any{}
}

// validateConfig performs validation on the loaded configuration
func validateConfig(cfg *Config) error {
	// Validate required fields
	if cfg.Upstream.URL == nil || cfg.Upstream.URL.String() == "" {
		return fmt.Errorf("upstream URL is required")
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertPath == "" {
			return fmt.Errorf("TLS certificate path is required when TLS is enabled")
		}
		if cfg.TLS.KeyPath == "" {
			return fmt.Errorf("TLS key path is required when TLS is enabled")
		}

		// Check if certificate and key files exist
		if _, err := os.Stat(cfg.TLS.CertPath); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file not found: %s", cfg.TLS.CertPath)
		}
		if _, err := os.Stat(cfg.TLS.KeyPath); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file not found: %s", cfg.TLS.KeyPath)
		}
	}

	// Validate authentication configurations
	if err := validateAuthConfig(cfg); err != nil {
		return err
	}

	if err := validateStoreConfig(cfg); err != nil {
		return err
	}

	// Validate authorization configurations
	if err := validateAuthzConfig(cfg); err != nil {
		return err
	}

	return validateRules(cfg.Rules)
}

// validateAuthConfig validates plug and login configuration
func validateAuthConfig(cfg *Config) error {
	// Validate mTLS configuration
	if cfg.Auth.MTLS.Enabled {
		if len(cfg.Auth.MTLS.CAPaths) == 0 {
			return fmt.Errorf("at least one CA path is required when mTLS is enabled")
		}

		// Check if CA files exist
		for _, caPath := range cfg.Auth.MTLS.CAPaths {
			if _, err := os.Stat(caPath); os.IsNotExist(err) {
				return fmt.Errorf("mTLS CA file not found: %s", caPath)
			}
		}
	}

	// Validate Bearer configuration
	if cfg.Auth.Bearer.Enabled {
		if cfg.Auth.Bearer.Issuer == "" {
			return fmt.Errorf("bearer issuer is required when bearer is enabled")
		}
		if cfg.Auth.Bearer.ClientID == "" {
			return fmt.Errorf("bearer client ID is required when bearer is enabled")
		}
	}

	if cfg.Auth.Token.Enabled && cfg.Auth.Token.SigningKey == "" {
		return fmt.Errorf("token signing key is required when the token plug is enabled")
	}

	if cfg.Auth.Session.Enabled && cfg.Auth.Session.CookieSecret == "" {
		return fmt.Errorf("session cookie secret is required when the session plug is enabled")
	}

	// Validate OIDC configuration
	if cfg.Auth.OIDC.Enabled {
		if cfg.Auth.OIDC.Issuer == "" {
			return fmt.Errorf("OIDC issuer is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC client secret is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.RedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when OIDC is enabled")
		}
		if cfg.Auth.OIDC.CookieSecret == "" {
			return fmt.Errorf("OIDC cookie secret is required when OIDC is enabled")
		}
		if !cfg.Auth.Session.Enabled && !cfg.Auth.Token.Enabled {
			return fmt.Errorf("OIDC login requires the session or token plug to establish sessions")
		}
	}

	return nil
}

// validateStoreConfig validates the backing store
func validateStoreConfig(cfg *Config) error {
	switch cfg.Store.Type {
	case "memory":
	case "redis":
		if cfg.Store.Redis.URL == "" {
			return fmt.Errorf("redis URL is required when using the redis store")
		}
	default:
		return fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
	return nil
}

// validateAuthzConfig validates authorization configuration
func validateAuthzConfig(cfg *Config) error {
	switch cfg.Authz.Type {
	case "simple":
	case "spicedb":
		if cfg.Authz.SpiceDB.Token == "" {
			return fmt.Errorf("SpiceDB token is required when using SpiceDB authorization")
		}
		if cfg.Authz.SpiceDB.ResourceID == "" {
			return fmt.Errorf("SpiceDB resource ID is required when using SpiceDB authorization")
		}
	default:
		return fmt.Errorf("unknown authorizer type %q", cfg.Authz.Type)
	}

	return nil
}
