// Package oidc implements interactive login against an OpenID Connect
// provider. A successful login is handed to whichever plug is active for the
// request, so the same handler establishes cookie sessions or issues tokens
// depending on how the plug chain is configured.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"authplug/internal/auth"
	"authplug/internal/contextutil"
	"authplug/internal/cookie"
	"authplug/internal/observability/logging"
	"authplug/internal/observability/metrics"
	"authplug/internal/plug"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	// flowCookieName carries state, PKCE verifier and return path between login and callback
	flowCookieName = "authplug_login"
	flowTTL        = 10 * time.Minute
)

// Config holds OIDC login configuration
type Config struct {
	// Issuer is the OIDC issuer URL
	Issuer string

	// ClientID is the OIDC client ID
	ClientID string

	// ClientSecret is the OIDC client secret
	ClientSecret string

	// RedirectURL is the callback URL registered with the provider
	RedirectURL string

	// Scopes is a list of OIDC scopes to request
	Scopes []string

	// CookieSecret encrypts the login flow cookie
	CookieSecret string

	// PostLogoutURL is where logout redirects to
	PostLogoutURL string
}

// flow is the sealed content of the login flow cookie
type flow struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	ReturnTo string `json:"return_to"`
}

// Handler serves the login, callback and logout endpoints
type Handler struct {
	logger        *logging.Logger
	metrics       *metrics.Collector
	verifier      *oidc.IDTokenVerifier
	oauth         oauth2.Config
	sealer        *cookie.Sealer
	postLogoutURL string
}

// New discovers the provider and creates a login handler
func New(ctx context.Context, config Config, logger *logging.Logger, metrics *metrics.Collector) (*Handler, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("OIDC login enabled but no issuer provided")
	}

	logger.Debug("Initializing OIDC provider", "issuer", config.Issuer)
	provider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: config.ClientID})
	return NewWithProvider(config, provider.Endpoint(), verifier, logger, metrics)
}

// NewWithProvider creates a login handler for an already discovered provider
func NewWithProvider(config Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, logger *logging.Logger, metrics *metrics.Collector) (*Handler, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, fmt.Errorf("OIDC login enabled but clientID or clientSecret not provided")
	}
	if config.RedirectURL == "" {
		return nil, fmt.Errorf("OIDC login enabled but no redirect URL provided")
	}

	sealer, err := cookie.NewSealer([]byte(config.CookieSecret))
	if err != nil {
		return nil, fmt.Errorf("OIDC login cookie secret: %w", err)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	postLogout := config.PostLogoutURL
	if postLogout == "" {
		postLogout = "/"
	}

	return &Handler{
		logger:   logger.WithModule("login.oidc"),
		metrics:  metrics,
		verifier: verifier,
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
		sealer:        sealer,
		postLogoutURL: postLogout,
	}, nil
}

// Login starts the authorization code flow with PKCE
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	state, err := randomString(24)
	if err != nil {
		logger.Error("Failed to generate state parameter", logging.Err(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	f := flow{
		State:    state,
		Verifier: oauth2.GenerateVerifier(),
		ReturnTo: safeReturnPath(r.URL.Query().Get("return_to")),
	}

	data, err := json.Marshal(f)
	if err != nil {
		logger.Error("Failed to encode login flow", logging.Err(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if err := h.sealer.Write(w, flowCookieName, data, flowTTL, cookie.Options{Secure: r.TLS != nil}); err != nil {
		logger.Error("Failed to write login flow cookie", logging.Err(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	logger.Info("Redirecting to OIDC provider for authentication")
	http.Redirect(w, r, h.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(f.Verifier)), http.StatusFound)
}

// Callback completes the code exchange and establishes a session through the
// active plug.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	data, err := h.sealer.Read(r, flowCookieName)
	if err != nil {
		logger.Warn("Login flow cookie missing or invalid", logging.Err(err))
		http.Error(w, "Invalid callback", http.StatusBadRequest)
		return
	}

	var f flow
	if err := json.Unmarshal(data, &f); err != nil {
		logger.Warn("Login flow cookie unreadable", logging.Err(err))
		http.Error(w, "Invalid callback", http.StatusBadRequest)
		return
	}

	if state := r.URL.Query().Get("state"); state == "" || state != f.State {
		logger.Warn("State mismatch", "param_present", state != "")
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		logger.Info("Provider rejected login", "error", errParam)
		http.Error(w, "Login rejected", http.StatusUnauthorized)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		logger.Warn("No code parameter in callback")
		http.Error(w, "No code received", http.StatusBadRequest)
		return
	}

	token, err := h.oauth.Exchange(ctx, code, oauth2.VerifierOption(f.Verifier))
	if err != nil {
		logger.Error("Failed to exchange token", logging.Err(err))
		http.Error(w, "Failed to exchange token", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		logger.Error("No ID token in OAuth2 token")
		http.Error(w, "No ID token in OAuth2 token", http.StatusBadGateway)
		return
	}

	idToken, err := h.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		logger.Error("Failed to verify ID token", logging.Err(err))
		http.Error(w, "Failed to verify ID token", http.StatusUnauthorized)
		return
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email,omitempty"`
		Name    string `json:"name,omitempty"`
	}
	if err := idToken.Claims(&claims); err != nil {
		logger.Error("Failed to parse claims from ID token", logging.Err(err))
		http.Error(w, "Failed to parse claims", http.StatusBadGateway)
		return
	}

	conn := plug.ConnFromContext(ctx)
	if conn == nil {
		logger.Error("Callback reached without a plug pipeline")
		http.Error(w, "Authentication unavailable", http.StatusInternalServerError)
		return
	}

	identity := &auth.Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Attributes: map[string]interface{}{
			"issuer": idToken.Issuer,
		},
	}

	err = plug.CreateSession(conn, identity)
	h.metrics.RecordSessionOperation(plug.ActiveName(conn), "create", err == nil)
	if err != nil {
		logger.Error("Failed to establish session", "plug", plug.ActiveName(conn), logging.Err(err))
		http.Error(w, "Failed to establish session", http.StatusInternalServerError)
		return
	}

	logger.Info("Login successful", "subject", claims.Subject, "plug", plug.ActiveName(conn))
	cookie.Clear(w, flowCookieName, cookie.Options{Secure: r.TLS != nil})

	// A redirect would drop credentials issued in response headers, so a
	// plug that hands out a token gets it returned in the body instead.
	if issued, ok := issuedToken(conn.CurrentIdentity()); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: issued,
			TokenType:   "Bearer",
			ReturnTo:    f.ReturnTo,
		}); err != nil {
			logger.Error("Failed to write token response", logging.Err(err))
		}
		return
	}

	http.Redirect(w, r, f.ReturnTo, http.StatusSeeOther)
}

// tokenResponse is the callback body for plugs that issue tokens
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ReturnTo    string `json:"return_to"`
}

func issuedToken(identity *auth.Identity) (string, bool) {
	if identity == nil {
		return "", false
	}
	t, ok := identity.Attributes[auth.AttrIssuedToken].(string)
	return t, ok && t != ""
}

// Logout tears down the session through the active plug
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := h.requestLogger(r)

	conn := plug.ConnFromContext(r.Context())
	if conn == nil {
		logger.Error("Logout reached without a plug pipeline")
		http.Error(w, "Authentication unavailable", http.StatusInternalServerError)
		return
	}

	subject := ""
	if identity := conn.CurrentIdentity(); identity != nil {
		subject = identity.Subject
	}

	err := plug.DeleteSession(conn)
	h.metrics.RecordSessionOperation(plug.ActiveName(conn), "delete", err == nil)
	if err != nil {
		logger.Error("Failed to delete session", "plug", plug.ActiveName(conn), logging.Err(err))
		http.Error(w, "Failed to log out", http.StatusInternalServerError)
		return
	}

	logger.Info("Logout successful", "subject", subject)
	http.Redirect(w, r, h.postLogoutURL, http.StatusSeeOther)
}

func (h *Handler) requestLogger(r *http.Request) *logging.Logger {
	return contextutil.Logger(r.Context(), h.logger)
}

// CallbackPath returns the path component of the redirect URL
func CallbackPath(redirectURL string) string {
	parsed, err := url.Parse(redirectURL)
	if err != nil || parsed.Path == "" {
		return "/auth/callback"
	}
	return parsed.Path
}

// safeReturnPath only accepts local absolute paths
func safeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

// randomString generates a URL-safe random string of the specified length
func randomString(length int) (string, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		return "", errors.New("short random read")
	}
	return s[:length], nil
}
