package chain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"authplug/internal/auth"
	"authplug/internal/config"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"
	"authplug/internal/store/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Store.Type = "memory"
	cfg.Auth.Session.CookieName = "authplug_session"
	cfg.Auth.Session.CookieSecret = testSecret
	cfg.Auth.Session.TTL = 30 * time.Minute
	cfg.Auth.Token.SigningKey = testSecret
	cfg.Auth.Token.Issuer = "authplug"
	cfg.Auth.Token.TTL = time.Hour
	cfg.Auth.Token.ResponseHeader = "X-Auth-Token"
	return cfg
}

func names(c *Chain) []string {
	var out []string
	for _, d := range c.Dispatchers() {
		out = append(out, d.Name())
	}
	return out
}

func TestNewFromConfig_OrderAndActivePlug(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	cfg.Auth.Session.Enabled = true
	cfg.Auth.Token.Enabled = true

	c, err := NewFromConfig(context.Background(), cfg, nil, logging.NewDiscard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Equal(t, []string{"token", "session"}, names(c))

	var conn *plug.Conn
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn = plug.ConnFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, conn)
	assert.Nil(t, conn.CurrentIdentity())
	assert.Equal(t, "session", plug.ActiveName(conn))
}

func TestNewFromConfig_SessionRoundTripOverRedis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Auth.Session.Enabled = true
	cfg.Store.Type = "redis"
	cfg.Store.Redis.URL = "redis://" + mr.Addr()
	cfg.Store.Redis.KeyPrefix = "test:"

	c, err := NewFromConfig(context.Background(), cfg, nil, logging.NewDiscard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	login := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, plug.CreateSession(plug.ConnFromContext(r.Context()), &auth.Identity{Subject: "alice"}))
	}))
	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Len(t, mr.Keys(), 1)

	var subject string
	me := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity := plug.IdentityFromContext(r.Context()); identity != nil {
			subject = identity.Subject
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookies[0])
	me.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "alice", subject)
}

func TestNewFromConfig_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "short session secret", mutate: func(c *config.Config) {
			c.Auth.Session.Enabled = true
			c.Auth.Session.CookieSecret = "short"
		}},
		{name: "short signing key", mutate: func(c *config.Config) {
			c.Auth.Token.Enabled = true
			c.Auth.Token.SigningKey = "short"
		}},
		{name: "mtls without CA", mutate: func(c *config.Config) { c.Auth.MTLS.Enabled = true }},
		{name: "unknown store", mutate: func(c *config.Config) { c.Store.Type = "etcd" }},
		{name: "unreachable redis", mutate: func(c *config.Config) {
			c.Store.Type = "redis"
			c.Store.Redis.URL = "redis://127.0.0.1:1"
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig()
			tc.mutate(cfg)
			_, err := NewFromConfig(context.Background(), cfg, nil, logging.NewDiscard(), nil)
			assert.Error(t, err)
		})
	}
}

func TestMiddleware_Empty(t *testing.T) {
	t.Parallel()
	c := New(nil, logging.NewDiscard())

	called := false
	c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, plug.ConnFromContext(r.Context()))
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.NoError(t, c.Close())
}

func TestNewStore_MemoryReleasesCleanup(t *testing.T) {
	t.Parallel()
	st, closer, err := NewStore(context.Background(), baseConfig())
	require.NoError(t, err)

	_, ok := st.(*memory.Store)
	require.True(t, ok)
	assert.NoError(t, closer())
}
