package plug

import (
	"context"
	"net/http"

	"authplug/internal/auth"
)

// Conn is the per-request carrier threaded through the plug pipeline.
// It is owned by a single in-flight request and is not safe for concurrent use.
type Conn struct {
	// Request is the inbound request
	Request *http.Request

	// Writer is the response writer for the request
	Writer http.ResponseWriter

	config   Config
	identity *auth.Identity
}

// NewConn creates a conn for the given request
func NewConn(w http.ResponseWriter, r *http.Request) *Conn {
	return &Conn{
		Request: r,
		Writer:  w,
	}
}

// Context returns the request context, or context.Background when the conn
// was built without a request.
func (c *Conn) Context() context.Context {
	if c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// Config returns the configuration stored by the last dispatcher that ran.
func (c *Conn) Config() Config {
	return c.config
}

// PutConfig replaces the stored configuration
func (c *Conn) PutConfig(cfg Config) {
	c.config = cfg
}

// CurrentIdentity returns the assigned identity or nil.
func (c *Conn) CurrentIdentity() *auth.Identity {
	return c.identity
}

// AssignIdentity records identity as the current one. A nil identity clears it.
func (c *Conn) AssignIdentity(identity *auth.Identity) {
	c.identity = identity
}

type connKey struct{}

// ContextWithConn stores the conn in ctx
func ContextWithConn(ctx context.Context, conn *Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the conn stored in ctx, or nil.
func ConnFromContext(ctx context.Context) *Conn {
	if conn, ok := ctx.Value(connKey{}).(*Conn); ok {
		return conn
	}
	return nil
}

// IdentityFromContext returns the identity assigned on the request's conn.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	if conn := ConnFromContext(ctx); conn != nil {
		return conn.CurrentIdentity()
	}
	return nil
}
