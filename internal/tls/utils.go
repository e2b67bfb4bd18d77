package tls

import (
	"crypto/x509"
	"fmt"
	"time"

	"authplug/internal/observability/logging"
)

// VerifyCertificate verifies a client certificate against a CA pool. Any
// intermediates presented by the client are used to build the chain.
func VerifyCertificate(cert *x509.Certificate, caPool *x509.CertPool, intermediates []*x509.Certificate, logger *logging.Logger) error {
	pool := x509.NewCertPool()
	for _, ic := range intermediates {
		pool.AddCert(ic)
	}

	opts := x509.VerifyOptions{
		Roots:         caPool,
		CurrentTime:   time.Now(),
		Intermediates: pool,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	if _, err := cert.Verify(opts); err != nil {
		if logger != nil {
			logger.Error("Client certificate verification failed", logging.Err(err))
		}
		return fmt.Errorf("client certificate verification failed: %w", err)
	}

	return nil
}

// ExtractSubject extracts the subject from a certificate
// Returns the Common Name, or the first DNS name in development mode if CN is empty
func ExtractSubject(cert *x509.Certificate, developmentMode bool) (string, error) {
	commonName := cert.Subject.CommonName

	if commonName == "" && developmentMode && len(cert.DNSNames) > 0 {
		return cert.DNSNames[0], nil
	}

	if commonName == "" {
		return "", fmt.Errorf("certificate has no Common Name or valid DNS names")
	}

	return commonName, nil
}
