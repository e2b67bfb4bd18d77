package config

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTHPLUG_UPSTREAM_URL", "http://upstream:8080")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "upstream:8080", cfg.Upstream.URL.Host)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, "simple", cfg.Authz.Type)
	assert.Equal(t, "authplug_session", cfg.Auth.Session.CookieName)
	assert.Equal(t, 30*time.Minute, cfg.Auth.Session.TTL)
	assert.Equal(t, time.Hour, cfg.Auth.Token.TTL)
	assert.False(t, cfg.DevelopmentMode())
	assert.Empty(t, cfg.Rules)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("AUTHPLUG_UPSTREAM_URL", "http://upstream:8080")
	t.Setenv("AUTHPLUG_AUTH_SESSION_ENABLED", "true")
	t.Setenv("AUTHPLUG_AUTH_SESSION_COOKIE_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("AUTHPLUG_AUTH_SESSION_TTL", "2h")
	t.Setenv("AUTHPLUG_STORE_TYPE", "redis")
	t.Setenv("AUTHPLUG_ENVIRONMENT", "Development")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Auth.Session.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Auth.Session.TTL)
	assert.Equal(t, "redis", cfg.Store.Type)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.Redis.URL)
	assert.True(t, cfg.DevelopmentMode())
}

func TestLoad_ConfigFileAndRules(t *testing.T) {
	rulesPath := writeFile(t, "rules.yaml", `
rules:
  - name: health
    action: allow
    paths: ["/healthz"]
  - name: api
    action: auth
    paths: ["/api/"]
    match_prefix: true
    methods: ["GET", "POST"]
    permission: read
`)
	configPath := writeFile(t, "config.yaml", "upstream_url: http://from-file:9000\nserver_addr: \":9999\"\nrules_path: "+rulesPath+"\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "from-file:9000", cfg.Upstream.URL.Host)
	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "api", cfg.Rules[1].Name)
	assert.True(t, cfg.Rules[1].MatchPrefix)
	assert.Equal(t, []string{"GET", "POST"}, cfg.Rules[1].Methods)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing upstream", env: map[string]string{}},
		{name: "bad duration", env: map[string]string{"AUTHPLUG_UPSTREAM_URL": "http://u", "AUTHPLUG_AUTH_TOKEN_TTL": "soon"}},
		{name: "unknown store", env: map[string]string{"AUTHPLUG_UPSTREAM_URL": "http://u", "AUTHPLUG_STORE_TYPE": "etcd"}},
		{name: "missing rules file", env: map[string]string{"AUTHPLUG_UPSTREAM_URL": "http://u", "AUTHPLUG_RULES_PATH": "/does/not/exist.yaml"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func validBase() *Config {
	cfg := &Config{}
	cfg.Upstream.URL = mustParse("http://upstream")
	cfg.Store.Type = "memory"
	cfg.Authz.Type = "simple"
	return cfg
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "token without key", mutate: func(c *Config) { c.Auth.Token.Enabled = true }, wantErr: "signing key"},
		{name: "session without secret", mutate: func(c *Config) { c.Auth.Session.Enabled = true }, wantErr: "cookie secret"},
		{name: "bearer without issuer", mutate: func(c *Config) { c.Auth.Bearer.Enabled = true }, wantErr: "issuer"},
		{name: "mtls without CA", mutate: func(c *Config) { c.Auth.MTLS.Enabled = true }, wantErr: "CA path"},
		{name: "login without session plug", mutate: func(c *Config) {
			c.Auth.OIDC.Enabled = true
			c.Auth.OIDC.Issuer = "https://idp"
			c.Auth.OIDC.ClientID = "id"
			c.Auth.OIDC.ClientSecret = "secret"
			c.Auth.OIDC.RedirectURL = "https://proxy/auth/callback"
			c.Auth.OIDC.CookieSecret = "0123456789abcdef0123456789abcdef"
		}, wantErr: "session or token plug"},
		{name: "redis without url", mutate: func(c *Config) { c.Store.Type = "redis" }, wantErr: "redis URL"},
		{name: "spicedb without token", mutate: func(c *Config) { c.Authz.Type = "spicedb" }, wantErr: "SpiceDB token"},
		{name: "unknown authorizer", mutate: func(c *Config) { c.Authz.Type = "opa" }, wantErr: "unknown authorizer"},
		{name: "auth rule without permission", mutate: func(c *Config) {
			c.Rules = []Rule{{Name: "api", Action: "auth", Paths: []string{"/api"}}}
		}, wantErr: "permission"},
		{name: "duplicate rule", mutate: func(c *Config) {
			c.Rules = []Rule{{Name: "a", Action: "allow", Paths: []string{"/"}}, {Name: "a", Action: "deny", Paths: []string{"/x"}}}
		}, wantErr: "duplicate"},
		{name: "unknown action", mutate: func(c *Config) {
			c.Rules = []Rule{{Name: "a", Action: "maybe", Paths: []string{"/"}}}
		}, wantErr: "unknown action"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validBase()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestPlugOptions(t *testing.T) {
	t.Parallel()
	cfg := validBase()
	cfg.Auth.Session.CookieName = "sid"
	cfg.Auth.Session.TTL = time.Minute
	cfg.Auth.Token.SigningKey = "key"

	session := cfg.PlugOptions("session")
	assert.Equal(t, "sid", session["cookie_name"])
	assert.Equal(t, time.Minute, session["session_ttl"])

	assert.Equal(t, "key", cfg.PlugOptions("token")["signing_key"])
	assert.Empty(t, cfg.PlugOptions("mtls"))
}

func TestLoadRules_Invalid(t *testing.T) {
	t.Parallel()
	_, err := LoadRules(writeFile(t, "rules.yaml", "rules: [not: a: rule"))
	assert.Error(t, err)
}

func mustParse(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
