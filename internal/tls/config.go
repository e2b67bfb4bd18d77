package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"authplug/internal/observability/logging"
)

// Config describes the server side of TLS and the CAs trusted for client
// certificates.
type Config struct {
	Logger *logging.Logger

	// RootCAPath is a CA used for client certificates when AuthCAFiles is empty
	RootCAPath string

	// AuthCAFiles lists the CAs client certificates must chain to
	AuthCAFiles []string

	CertPath string
	KeyPath  string

	// AuthCAs is populated by GetTLSConfig and shared with the mtls plug
	AuthCAs *x509.CertPool
}

// LoadCertPool reads PEM encoded certificates from every path into one pool.
func LoadCertPool(paths ...string) (*x509.CertPool, error) {
	if len(paths) == 0 {
		return nil, errors.New("no CA certificate paths given")
	}

	pool := x509.NewCertPool()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("failed to parse CA certificate %s", path)
		}
	}
	return pool, nil
}

// GetTLSConfig builds the server TLS configuration. Client certificates are
// requested but optional; the handshake only checks them against AuthCAs and
// the mtls plug turns them into identities.
func (c *Config) GetTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		ClientAuth: tls.VerifyClientCertIfGiven,
		MinVersion: tls.VersionTLS12,
	}

	if c.CertPath != "" && c.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.CertPath, c.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load server certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	switch {
	case len(c.AuthCAFiles) > 0:
		pool, err := LoadCertPool(c.AuthCAFiles...)
		if err != nil {
			return nil, fmt.Errorf("failed to load client CAs: %w", err)
		}
		c.AuthCAs = pool
	case c.RootCAPath != "":
		pool, err := LoadCertPool(c.RootCAPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load root CA: %w", err)
		}
		c.Logger.Warn("No client CA files configured, trusting the root CA for client certificates")
		c.AuthCAs = pool
	}
	tlsConfig.ClientCAs = c.AuthCAs

	c.Logger.Info("TLS configured", "client_cas", c.AuthCAs != nil, "server_cert", len(tlsConfig.Certificates) > 0)
	return tlsConfig, nil
}
