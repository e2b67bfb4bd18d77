package plug

import (
	"errors"

	"authplug/internal/auth"
)

// ErrNoActivePlug is returned when no dispatcher has run for the request yet.
var ErrNoActivePlug = errors.New("no active plug for request")

// CreateSession establishes a session for identity through the plug that is
// active for the conn's request.
func CreateSession(conn *Conn, identity *auth.Identity) error {
	cfg := conn.Config()
	p := cfg.Plug()
	if p == nil {
		return ErrNoActivePlug
	}
	return DoCreate(p, conn, identity, cfg)
}

// DeleteSession tears down the session through the active plug.
func DeleteSession(conn *Conn) error {
	cfg := conn.Config()
	p := cfg.Plug()
	if p == nil {
		return ErrNoActivePlug
	}
	return DoDelete(p, conn, cfg)
}

// RefreshIdentity re-runs Fetch on the active plug, replacing whatever identity
// is currently assigned.
func RefreshIdentity(conn *Conn) error {
	cfg := conn.Config()
	p := cfg.Plug()
	if p == nil {
		return ErrNoActivePlug
	}
	return DoFetch(p, conn, cfg)
}
