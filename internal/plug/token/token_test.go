package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"authplug/internal/auth"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"
	"authplug/internal/store/memory"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newPlug(t *testing.T) (*Plug, *memory.Store, plug.Config) {
	t.Helper()
	st := memory.New()
	p := New(st, logging.NewDiscard())
	cfg, err := plug.Init(p, plug.NewConfig(map[string]any{OptSigningKey: testKey}))
	require.NoError(t, err)
	return p, st, cfg
}

// issue creates a token through DoCreate and returns it
func issue(t *testing.T, p *Plug, cfg plug.Config, identity *auth.Identity) string {
	t.Helper()
	rec := httptest.NewRecorder()
	conn := plug.NewConn(rec, httptest.NewRequest(http.MethodPost, "/auth/callback", nil))
	require.NoError(t, plug.DoCreate(p, conn, identity, cfg))

	signed := rec.Header().Get(DefaultHeader)
	require.NotEmpty(t, signed)
	assert.Equal(t, signed, conn.CurrentIdentity().Attributes["token"])
	assert.Equal(t, signed, conn.CurrentIdentity().Attributes[auth.AttrIssuedToken])
	return signed
}

func bearerConn(token string) (*plug.Conn, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return plug.NewConn(rec, req), rec
}

func TestInit(t *testing.T) {
	t.Parallel()
	p := New(memory.New(), logging.NewDiscard())

	_, err := plug.Init(p, plug.NewConfig(map[string]any{OptSigningKey: "short"}))
	assert.Error(t, err)

	_, err = plug.Init(p, plug.NewConfig(map[string]any{OptSigningKey: testKey, OptTokenTTL: "0s"}))
	assert.Error(t, err)

	cfg, err := plug.Init(p, plug.NewConfig(map[string]any{OptSigningKey: testKey}))
	require.NoError(t, err)
	assert.Equal(t, DefaultIssuer, cfg.String(OptIssuer, ""))
	assert.Equal(t, DefaultHeader, cfg.String(OptHeader, ""))
}

func TestCreateThenCall(t *testing.T) {
	t.Parallel()
	p, _, cfg := newPlug(t)
	input := &auth.Identity{Subject: "alice", Name: "Alice"}
	signed := issue(t, p, cfg, input)
	assert.Nil(t, input.Attributes, "input identity must not be modified")

	conn, _ := bearerConn(signed)
	require.NoError(t, plug.Call(p, conn, cfg))

	identity := conn.CurrentIdentity()
	require.NotNil(t, identity)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, "Alice", identity.Name)
	assert.Equal(t, string(auth.AuthTypeToken), identity.Provider)
}

func TestFetch_Rejections(t *testing.T) {
	t.Parallel()
	p, _, cfg := newPlug(t)
	now := time.Now()

	sign := func(method jwtlib.SigningMethod, key any, claims Claims) string {
		s, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwtlib.RegisteredClaims{
		Subject:   "alice",
		Issuer:    DefaultIssuer,
		ExpiresAt: jwtlib.NewNumericDate(now.Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwtlib.NewNumericDate(now.Add(-time.Minute))
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	noSubject := valid
	noSubject.Subject = ""

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token"},
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong key", token: sign(jwtlib.SigningMethodHS256, []byte("another-key-another-key-another-k"), Claims{RegisteredClaims: valid})},
		{name: "wrong algorithm", token: sign(jwtlib.SigningMethodHS512, []byte(testKey), Claims{RegisteredClaims: valid})},
		{name: "expired", token: sign(jwtlib.SigningMethodHS256, []byte(testKey), Claims{RegisteredClaims: expired})},
		{name: "wrong issuer", token: sign(jwtlib.SigningMethodHS256, []byte(testKey), Claims{RegisteredClaims: wrongIssuer})},
		{name: "no expiry", token: sign(jwtlib.SigningMethodHS256, []byte(testKey), Claims{RegisteredClaims: noExpiry})},
		{name: "no subject", token: sign(jwtlib.SigningMethodHS256, []byte(testKey), Claims{RegisteredClaims: noSubject})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, _ := bearerConn(tc.token)
			require.NoError(t, plug.Call(p, conn, cfg))
			assert.Nil(t, conn.CurrentIdentity())
		})
	}
}

func TestDelete_RevokesToken(t *testing.T) {
	t.Parallel()
	p, st, cfg := newPlug(t)
	signed := issue(t, p, cfg, &auth.Identity{Subject: "alice"})

	conn, _ := bearerConn(signed)
	require.NoError(t, plug.Call(p, conn, cfg))
	require.NotNil(t, conn.CurrentIdentity())

	require.NoError(t, plug.DeleteSession(conn))
	assert.Nil(t, conn.CurrentIdentity())
	assert.Equal(t, 1, st.Len())

	again, _ := bearerConn(signed)
	require.NoError(t, plug.Call(p, again, cfg))
	assert.Nil(t, again.CurrentIdentity())
}

func TestDelete_WithoutToken(t *testing.T) {
	t.Parallel()
	p, st, cfg := newPlug(t)

	conn, _ := bearerConn("")
	conn.AssignIdentity(&auth.Identity{Subject: "3"})
	require.NoError(t, plug.DoDelete(p, conn, cfg))

	assert.Nil(t, conn.CurrentIdentity())
	assert.Equal(t, 0, st.Len())
}

func TestCreate_RequiresSubject(t *testing.T) {
	t.Parallel()
	p, _, cfg := newPlug(t)
	conn, _ := bearerConn("")

	assert.Error(t, plug.DoCreate(p, conn, &auth.Identity{}, cfg))
	assert.Error(t, plug.DoCreate(p, conn, nil, cfg))
}

func TestRevocationExpiresWithToken(t *testing.T) {
	t.Parallel()
	p, st, cfg := newPlug(t)
	signed := issue(t, p, cfg, &auth.Identity{Subject: "alice"})

	conn, _ := bearerConn(signed)
	require.NoError(t, plug.Call(p, conn, cfg))
	require.NoError(t, plug.DeleteSession(conn))

	claims := &Claims{}
	_, _, err := jwtlib.NewParser().ParseUnverified(signed, claims)
	require.NoError(t, err)

	_, err = st.Get(context.Background(), revokedPrefix+claims.ID)
	assert.NoError(t, err)
}
