package authz

import (
	"context"
	"net/http"

	"authplug/internal/auth"
)

// Decision represents an authorization decision
type Decision int

const (
	// Allow indicates the request is allowed
	Allow Decision = iota
	// Deny indicates the request is denied
	Deny
	// Unauthorized indicates the request is unauthorized (no identity)
	Unauthorized
	// Error indicates an error occurred during authorization
	Error
)

// Request represents an authorization request
type Request struct {
	// Identity is the identity to authorize
	Identity *auth.Identity

	// Resource is the resource being accessed
	Resource string

	// Permission is the permission being checked
	Permission string

	// Context is the request context
	Context context.Context
}

// Response represents an authorization response
type Response struct {
	// Decision is the authorization decision
	Decision Decision

	// Reason provides additional information about the decision
	Reason string

	// Error is set if an error occurred during authorization
	Error error
}

// Authorizer defines the interface for authorization. Identities are read
// from the request's plug conn.
type Authorizer interface {
	// Authorize checks if the identity has the specified permission on the resource
	Authorize(req *Request) *Response
}

// StatusCode maps a decision to the HTTP status returned when it blocks a request
func (d Decision) StatusCode() int {
	switch d {
	case Allow:
		return http.StatusOK
	case Deny:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		// SpiceDB and other backend failures are reported as unavailable
		return http.StatusServiceUnavailable
	}
}

// String returns the lowercase decision name
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Unauthorized:
		return "unauthorized"
	default:
		return "error"
	}
}
