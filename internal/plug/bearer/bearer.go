// Package bearer implements a plug that accepts OIDC ID tokens issued by an
// external identity provider as Bearer tokens.
package bearer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"authplug/internal/auth"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/exp/slices"
)

// Config holds Bearer plug configuration
type Config struct {
	// Issuer is the token issuer URL
	Issuer string

	// ClientID is the client ID for token validation
	ClientID string
}

// audiences helps unmarshall the audience claim which can be either a string or an array
type audiences []string

func (a *audiences) UnmarshalJSON(data []byte) error {
	// Try as a single string
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = []string{single}
		return nil
	}

	// Try as an array of strings
	var multiple []string
	if err := json.Unmarshal(data, &multiple); err == nil {
		*a = multiple
		return nil
	}

	return fmt.Errorf("invalid audience claim format")
}

// Plug verifies OIDC ID tokens
type Plug struct {
	logger   *logging.Logger
	verifier *oidc.IDTokenVerifier
	clientID string
}

// New discovers the issuer and creates a Bearer plug
func New(ctx context.Context, config Config, logger *logging.Logger) (*Plug, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("Bearer authentication enabled but no issuer provided")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("Bearer authentication enabled but no client ID provided")
	}

	logger.Debug("Initializing OIDC provider for Bearer authentication", "issuer", config.Issuer)
	provider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC provider for Bearer: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:          config.ClientID,
		SkipClientIDCheck: true, // audience and azp are checked in Fetch
	})
	return NewWithVerifier(verifier, config.ClientID, logger), nil
}

// NewWithVerifier creates a Bearer plug around an existing verifier
func NewWithVerifier(verifier *oidc.IDTokenVerifier, clientID string, logger *logging.Logger) *Plug {
	return &Plug{
		logger:   logger.WithModule("plug.bearer"),
		verifier: verifier,
		clientID: clientID,
	}
}

// Fetch verifies the presented ID token. Missing or invalid tokens, and tokens
// minted for another client, resolve to no identity.
func (p *Plug) Fetch(conn *plug.Conn, cfg plug.Config) (*auth.Identity, error) {
	if conn.Request == nil {
		return nil, nil
	}

	authHeader := conn.Request.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, nil
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenStr == "" {
		return nil, nil
	}

	idToken, err := p.verifier.Verify(conn.Context(), tokenStr)
	if err != nil {
		p.logger.Debug("Bearer token verification failed", logging.Err(err))
		return nil, nil
	}

	var claims struct {
		Subject string    `json:"sub"`
		Azp     string    `json:"azp,omitempty"`
		Aud     audiences `json:"aud,omitempty"`
		Name    string    `json:"name,omitempty"`
		Email   string    `json:"email,omitempty"`
	}
	if err := idToken.Claims(&claims); err != nil {
		p.logger.Debug("Failed to parse claims from Bearer token", logging.Err(err))
		return nil, nil
	}

	if claims.Azp != p.clientID && !slices.Contains(claims.Aud, p.clientID) {
		p.logger.Debug("Bearer token audience mismatch",
			"expectedClientID", p.clientID,
			"aud", claims.Aud,
			"azp", claims.Azp,
		)
		return nil, nil
	}

	return &auth.Identity{
		Subject:  claims.Subject,
		Provider: string(auth.AuthTypeBearer),
		Name:     claims.Name,
		Email:    claims.Email,
		Attributes: map[string]interface{}{
			"token": tokenStr,
		},
	}, nil
}

// Create returns identity unchanged; ID tokens are minted by the provider.
func (p *Plug) Create(conn *plug.Conn, identity *auth.Identity, cfg plug.Config) (*auth.Identity, error) {
	return identity, nil
}

// Delete has no server-side state to remove
func (p *Plug) Delete(conn *plug.Conn, cfg plug.Config) error {
	return nil
}
