// Package plug implements the lifecycle contract shared by every
// authentication plug: resolving the identity for a request, establishing a
// session for it and tearing that session down again.
//
// A plug only supplies Fetch, Create and Delete. The dispatch algorithm lives
// in this package and always publishes the outcome through Conn.AssignIdentity,
// so implementations never assign or clear the identity themselves.
package plug

import (
	"authplug/internal/auth"
)

// Plug is the capability set every authentication plug implements.
//
// Absence of an identity is reported as a nil identity, never as an error.
// Errors are reserved for failures the plug cannot resolve on its own, and are
// returned to the caller untouched.
type Plug interface {
	// Fetch resolves the identity from request-scoped evidence
	Fetch(conn *Conn, cfg Config) (*auth.Identity, error)

	// Create establishes a session for identity and returns the identity to assign
	Create(conn *Conn, identity *auth.Identity, cfg Config) (*auth.Identity, error)

	// Delete removes session-level evidence of the identity
	Delete(conn *Conn, cfg Config) error
}

// Initializer is implemented by plugs that transform their configuration at setup.
type Initializer interface {
	Init(cfg Config) (Config, error)
}

// Caller is implemented by plugs that replace the default dispatch algorithm.
type Caller interface {
	Call(conn *Conn, cfg Config) error
}

// FetchDoer overrides DoFetch
type FetchDoer interface {
	DoFetch(conn *Conn, cfg Config) error
}

// CreateDoer overrides DoCreate
type CreateDoer interface {
	DoCreate(conn *Conn, identity *auth.Identity, cfg Config) error
}

// DeleteDoer overrides DoDelete
type DeleteDoer interface {
	DoDelete(conn *Conn, cfg Config) error
}

// Init runs the plug's setup transform. Plugs without one get cfg back unchanged.
func Init(p Plug, cfg Config) (Config, error) {
	if i, ok := p.(Initializer); ok {
		return i.Init(cfg)
	}
	return cfg, nil
}

// Call is the per-request entry point. It delegates to p.Call when the plug
// overrides dispatch and to DefaultCall otherwise.
func Call(p Plug, conn *Conn, cfg Config) error {
	if c, ok := p.(Caller); ok {
		return c.Call(conn, cfg)
	}
	return DefaultCall(p, conn, cfg)
}

// DefaultCall records p as the active plug on cfg, stores cfg on the conn and
// fetches the identity unless one is already assigned.
func DefaultCall(p Plug, conn *Conn, cfg Config) error {
	cfg = cfg.WithPlug(p)
	conn.PutConfig(cfg)

	if conn.CurrentIdentity() != nil {
		return nil
	}

	return DoFetch(p, conn, cfg)
}

// DoFetch calls Fetch and assigns whatever it returned, nil included.
func DoFetch(p Plug, conn *Conn, cfg Config) error {
	if d, ok := p.(FetchDoer); ok {
		return d.DoFetch(conn, cfg)
	}

	identity, err := p.Fetch(conn, cfg)
	if err != nil {
		return err
	}
	conn.AssignIdentity(identity)
	return nil
}

// DoCreate calls Create and assigns the identity it returned.
func DoCreate(p Plug, conn *Conn, identity *auth.Identity, cfg Config) error {
	if d, ok := p.(CreateDoer); ok {
		return d.DoCreate(conn, identity, cfg)
	}

	created, err := p.Create(conn, identity, cfg)
	if err != nil {
		return err
	}
	conn.AssignIdentity(created)
	return nil
}

// DoDelete calls Delete and clears the identity.
func DoDelete(p Plug, conn *Conn, cfg Config) error {
	if d, ok := p.(DeleteDoer); ok {
		return d.DoDelete(conn, cfg)
	}

	if err := p.Delete(conn, cfg); err != nil {
		return err
	}
	conn.AssignIdentity(nil)
	return nil
}
