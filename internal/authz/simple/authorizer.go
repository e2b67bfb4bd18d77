// Package simple implements an authorizer that only requires an identity.
package simple

import (
	"authplug/internal/authz"
	"authplug/internal/observability/logging"
)

// Authorizer allows every request that carries an identity
type Authorizer struct {
	logger *logging.Logger
}

// New creates a simple authorizer
func New(logger *logging.Logger) *Authorizer {
	return &Authorizer{logger: logger.WithModule("authz.simple")}
}

// Authorize allows any resolved identity regardless of permission
func (a *Authorizer) Authorize(req *authz.Request) *authz.Response {
	if req.Identity == nil {
		return &authz.Response{
			Decision: authz.Unauthorized,
			Reason:   "No identity provided",
		}
	}

	a.logger.Debug("Allowing authenticated identity", "subject", req.Identity.Subject, "permission", req.Permission)
	return &authz.Response{
		Decision: authz.Allow,
		Reason:   "Authenticated",
	}
}
