// Package session implements a plug backed by server-side sessions. The
// browser only holds a sealed cookie carrying the session id; the identity
// itself lives in a store.Store.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"authplug/internal/auth"
	"authplug/internal/cookie"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"
	"authplug/internal/store"

	"github.com/google/uuid"
)

// Option names read from the plug configuration
const (
	OptCookieName   = "cookie_name"
	OptCookieSecret = "cookie_secret"
	OptCookieSecure = "cookie_secure"
	OptCookieDomain = "cookie_domain"
	OptSessionTTL   = "session_ttl"

	optSealer = "session.sealer"
)

// Defaults
const (
	DefaultCookieName = "authplug_session"
	DefaultSessionTTL = 30 * time.Minute
)

const keyPrefix = "session:"

// record is the stored form of a session
type record struct {
	Identity  auth.Identity `json:"identity"`
	CreatedAt time.Time     `json:"created_at"`
}

// Plug resolves identities from session cookies
type Plug struct {
	store  store.Store
	logger *logging.Logger
	now    func() time.Time
}

// New creates a session plug persisting sessions in st
func New(st store.Store, logger *logging.Logger) *Plug {
	return &Plug{
		store:  st,
		logger: logger.WithModule("plug.session"),
		now:    time.Now,
	}
}

// Init validates the cookie secret, fills defaults and prepares the cookie sealer.
func (p *Plug) Init(cfg plug.Config) (plug.Config, error) {
	sealer, err := cookie.NewSealer([]byte(cfg.String(OptCookieSecret, "")))
	if err != nil {
		return cfg, fmt.Errorf("session plug: %w", err)
	}

	ttl, err := cfg.Duration(OptSessionTTL, DefaultSessionTTL)
	if err != nil {
		return cfg, fmt.Errorf("session plug: %w", err)
	}
	if ttl <= 0 {
		return cfg, errors.New("session plug: session TTL must be positive")
	}

	return cfg.
		With(OptCookieName, cfg.String(OptCookieName, DefaultCookieName)).
		With(OptSessionTTL, ttl).
		With(optSealer, sealer), nil
}

// Fetch loads the session referenced by the request's cookie. Missing,
// tampered or unknown sessions resolve to no identity.
func (p *Plug) Fetch(conn *plug.Conn, cfg plug.Config) (*auth.Identity, error) {
	sealer, err := sealerFrom(cfg)
	if err != nil {
		return nil, err
	}

	sessionID, ok := p.sessionID(conn, cfg, sealer)
	if !ok {
		return nil, nil
	}

	data, err := p.store.Get(conn.Context(), keyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.logger.Debug("Session not found or expired")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		p.logger.Warn("Discarding unreadable session", logging.Err(err))
		return nil, nil
	}

	identity := rec.Identity
	identity.Provider = string(auth.AuthTypeSession)
	return &identity, nil
}

// Create stores a new session for identity and sets the session cookie. A
// session referenced by the request is removed first so ids are never reused
// across logins.
func (p *Plug) Create(conn *plug.Conn, identity *auth.Identity, cfg plug.Config) (*auth.Identity, error) {
	if identity == nil {
		return nil, errors.New("session plug: cannot create a session without an identity")
	}

	sealer, err := sealerFrom(cfg)
	if err != nil {
		return nil, err
	}

	ctx := conn.Context()
	if previous, ok := p.sessionID(conn, cfg, sealer); ok {
		if err := p.store.Delete(ctx, keyPrefix+previous); err != nil {
			return nil, fmt.Errorf("failed to remove previous session: %w", err)
		}
	}

	ttl, err := cfg.Duration(OptSessionTTL, DefaultSessionTTL)
	if err != nil {
		return nil, err
	}

	created := *identity
	created.Provider = string(auth.AuthTypeSession)

	data, err := json.Marshal(record{Identity: created, CreatedAt: p.now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	sessionID := uuid.NewString()
	if err := p.store.Set(ctx, keyPrefix+sessionID, data, ttl); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	name := cfg.String(OptCookieName, DefaultCookieName)
	if err := sealer.Write(conn.Writer, name, []byte(sessionID), ttl, cookieOptions(conn, cfg)); err != nil {
		return nil, fmt.Errorf("failed to write session cookie: %w", err)
	}

	p.logger.Debug("Session created", "subject", identity.Subject)
	return &created, nil
}

// Delete removes the stored session and expires the cookie.
func (p *Plug) Delete(conn *plug.Conn, cfg plug.Config) error {
	sealer, err := sealerFrom(cfg)
	if err != nil {
		return err
	}

	if sessionID, ok := p.sessionID(conn, cfg, sealer); ok {
		if err := p.store.Delete(conn.Context(), keyPrefix+sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}

	cookie.Clear(conn.Writer, cfg.String(OptCookieName, DefaultCookieName), cookieOptions(conn, cfg))
	p.logger.Debug("Session deleted")
	return nil
}

// sessionID returns the session id carried by the request cookie
func (p *Plug) sessionID(conn *plug.Conn, cfg plug.Config, sealer *cookie.Sealer) (string, bool) {
	if conn.Request == nil {
		return "", false
	}

	value, err := sealer.Read(conn.Request, cfg.String(OptCookieName, DefaultCookieName))
	if err != nil {
		if !errors.Is(err, http.ErrNoCookie) {
			p.logger.Debug("Ignoring invalid session cookie", logging.Err(err))
		}
		return "", false
	}
	return string(value), true
}

func sealerFrom(cfg plug.Config) (*cookie.Sealer, error) {
	v, _ := cfg.Get(optSealer)
	sealer, ok := v.(*cookie.Sealer)
	if !ok {
		return nil, errors.New("session plug: not initialized")
	}
	return sealer, nil
}

func cookieOptions(conn *plug.Conn, cfg plug.Config) cookie.Options {
	secure := conn.Request != nil && conn.Request.TLS != nil
	return cookie.Options{
		Domain: cfg.String(OptCookieDomain, ""),
		Secure: cfg.Bool(OptCookieSecure, secure),
	}
}
