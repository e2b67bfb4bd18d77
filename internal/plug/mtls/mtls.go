// Package mtls implements a plug that identifies callers by their verified
// TLS client certificate.
package mtls

import (
	"crypto/x509"
	"fmt"

	"authplug/internal/auth"
	"authplug/internal/observability/logging"
	"authplug/internal/plug"
	tlsutil "authplug/internal/tls"
)

// Config holds mTLS plug configuration
type Config struct {
	// CAPaths is a list of paths to CA certificates for client verification
	CAPaths []string

	// TLSConfig is the server TLS configuration; its auth CAs take precedence over CAPaths
	TLSConfig *tlsutil.Config

	// DevelopmentMode allows a DNS SAN to stand in for an empty Common Name
	DevelopmentMode bool
}

// Plug resolves identities from client certificates
type Plug struct {
	logger          *logging.Logger
	authCAs         *x509.CertPool
	developmentMode bool
}

// New creates an mTLS plug
func New(config Config, logger *logging.Logger) (*Plug, error) {
	logger = logger.WithModule("plug.mtls")

	// If TLS config is provided, use its auth CAs
	if config.TLSConfig != nil && config.TLSConfig.AuthCAs != nil {
		return NewWithPool(config.TLSConfig.AuthCAs, config.DevelopmentMode, logger), nil
	}

	if len(config.CAPaths) == 0 {
		return nil, fmt.Errorf("mTLS authentication enabled but no CA paths provided")
	}

	logger.Debug("Loading CA certificates", "paths", config.CAPaths)
	authCAs, err := tlsutil.LoadCertPool(config.CAPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mTLS CAs: %w", err)
	}

	return NewWithPool(authCAs, config.DevelopmentMode, logger), nil
}

// NewWithPool creates an mTLS plug trusting the given pool
func NewWithPool(pool *x509.CertPool, developmentMode bool, logger *logging.Logger) *Plug {
	return &Plug{
		logger:          logger,
		authCAs:         pool,
		developmentMode: developmentMode,
	}
}

// Fetch identifies the caller from the TLS client certificate. Plain HTTP,
// missing certificates and certificates that do not chain to the trusted CAs
// resolve to no identity.
func (p *Plug) Fetch(conn *plug.Conn, cfg plug.Config) (*auth.Identity, error) {
	r := conn.Request
	if r == nil || r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil, nil
	}

	chain := r.TLS.PeerCertificates
	if len(r.TLS.VerifiedChains) > 0 && len(r.TLS.VerifiedChains[0]) > 0 {
		chain = r.TLS.VerifiedChains[0]
	}
	leaf := chain[0]

	if err := tlsutil.VerifyCertificate(leaf, p.authCAs, chain[1:], nil); err != nil {
		p.logger.Debug("Client certificate rejected", logging.Err(err))
		return nil, nil
	}

	subject, err := tlsutil.ExtractSubject(leaf, p.developmentMode)
	if err != nil {
		p.logger.Debug("Client certificate has no usable subject", logging.Err(err))
		return nil, nil
	}

	return &auth.Identity{
		Subject:  subject,
		Provider: string(auth.AuthTypeMTLS),
		Attributes: map[string]interface{}{
			"certificate": leaf,
		},
	}, nil
}

// Create returns identity unchanged; certificates are issued out of band.
func (p *Plug) Create(conn *plug.Conn, identity *auth.Identity, cfg plug.Config) (*auth.Identity, error) {
	return identity, nil
}

// Delete has nothing to revoke
func (p *Plug) Delete(conn *plug.Conn, cfg plug.Config) error {
	return nil
}
