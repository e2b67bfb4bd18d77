// Package token implements a stateless plug: identities travel in HS256
// signed JWTs presented as Bearer tokens. Logging out revokes the token's id
// in a store.Store until the token would have expired anyway.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"authplug/internal/auth"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"
	"authplug/internal/store"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Option names read from the plug configuration
const (
	OptSigningKey = "signing_key"
	OptIssuer     = "issuer"
	OptTokenTTL   = "token_ttl"
	OptHeader     = "response_header"
)

// Defaults
const (
	DefaultIssuer   = "authplug"
	DefaultTokenTTL = time.Hour
	DefaultHeader   = "X-Auth-Token"

	// MinSigningKeyLength is the minimum HS256 key length accepted by Init
	MinSigningKeyLength = 32
)

const revokedPrefix = "revoked:"

// Claims are the claims carried by issued tokens
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwtlib.RegisteredClaims
}

// Plug resolves identities from signed bearer tokens
type Plug struct {
	revocations store.Store
	logger      *logging.Logger
	now         func() time.Time
}

// New creates a token plug recording revocations in st
func New(st store.Store, logger *logging.Logger) *Plug {
	return &Plug{
		revocations: st,
		logger:      logger.WithModule("plug.token"),
		now:         time.Now,
	}
}

// Init validates the signing key and fills defaults
func (p *Plug) Init(cfg plug.Config) (plug.Config, error) {
	if len(cfg.String(OptSigningKey, "")) < MinSigningKeyLength {
		return cfg, fmt.Errorf("token plug: signing key must be at least %d bytes long", MinSigningKeyLength)
	}

	ttl, err := cfg.Duration(OptTokenTTL, DefaultTokenTTL)
	if err != nil {
		return cfg, fmt.Errorf("token plug: %w", err)
	}
	if ttl <= 0 {
		return cfg, errors.New("token plug: token TTL must be positive")
	}

	return cfg.
		With(OptIssuer, cfg.String(OptIssuer, DefaultIssuer)).
		With(OptHeader, cfg.String(OptHeader, DefaultHeader)).
		With(OptTokenTTL, ttl), nil
}

// Fetch verifies the presented bearer token. Missing, invalid, expired and
// revoked tokens resolve to no identity.
func (p *Plug) Fetch(conn *plug.Conn, cfg plug.Config) (*auth.Identity, error) {
	claims, raw, ok := p.presented(conn, cfg)
	if !ok {
		return nil, nil
	}

	revoked, err := p.isRevoked(conn, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		p.logger.Debug("Rejecting revoked token", "subject", claims.Subject)
		return nil, nil
	}

	return &auth.Identity{
		Subject:  claims.Subject,
		Provider: string(auth.AuthTypeToken),
		Name:     claims.Name,
		Email:    claims.Email,
		Attributes: map[string]interface{}{
			"token": raw,
			"jti":   claims.ID,
		},
	}, nil
}

// Create issues a token for identity and publishes it in the response header.
func (p *Plug) Create(conn *plug.Conn, identity *auth.Identity, cfg plug.Config) (*auth.Identity, error) {
	if identity == nil || identity.Subject == "" {
		return nil, errors.New("token plug: cannot issue a token without a subject")
	}

	ttl, err := cfg.Duration(OptTokenTTL, DefaultTokenTTL)
	if err != nil {
		return nil, err
	}

	now := p.now()
	claims := Claims{
		Name:  identity.Name,
		Email: identity.Email,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.Subject,
			Issuer:    cfg.String(OptIssuer, DefaultIssuer),
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(cfg.String(OptSigningKey, "")))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if conn.Writer != nil {
		conn.Writer.Header().Set(cfg.String(OptHeader, DefaultHeader), signed)
	}

	issued := *identity
	issued.Provider = string(auth.AuthTypeToken)
	issued.Attributes = make(map[string]interface{}, len(identity.Attributes)+3)
	for k, v := range identity.Attributes {
		issued.Attributes[k] = v
	}
	issued.Attributes["token"] = signed
	issued.Attributes["jti"] = claims.ID
	issued.Attributes[auth.AttrIssuedToken] = signed

	p.logger.Debug("Token issued", "subject", identity.Subject, "expires_at", claims.ExpiresAt.Time)
	return &issued, nil
}

// Delete revokes the presented token until its expiry. Requests without a
// valid token have nothing to revoke.
func (p *Plug) Delete(conn *plug.Conn, cfg plug.Config) error {
	claims, _, ok := p.presented(conn, cfg)
	if !ok || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}

	remaining := claims.ExpiresAt.Sub(p.now())
	if remaining <= 0 {
		return nil
	}

	if err := p.revocations.Set(conn.Context(), revokedPrefix+claims.ID, []byte(claims.Subject), remaining); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	p.logger.Debug("Token revoked", "subject", claims.Subject)
	return nil
}

// presented parses and verifies the request's bearer token
func (p *Plug) presented(conn *plug.Conn, cfg plug.Config) (*Claims, string, bool) {
	if conn.Request == nil {
		return nil, "", false
	}

	header := conn.Request.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, "", false
	}

	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (interface{}, error) {
		return []byte(cfg.String(OptSigningKey, "")), nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(cfg.String(OptIssuer, DefaultIssuer)),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(p.now),
	)
	if err != nil {
		p.logger.Debug("Ignoring invalid bearer token", logging.Err(err))
		return nil, "", false
	}
	if claims.Subject == "" {
		return nil, "", false
	}

	return claims, raw, true
}

func (p *Plug) isRevoked(conn *plug.Conn, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	_, err := p.revocations.Get(conn.Context(), revokedPrefix+jti)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
}
