// Package cookie seals small values into tamper-proof, encrypted cookies.
package cookie

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MinSecretLength is the minimum secret length, matching an AES-256 key
const MinSecretLength = 32

// ErrInvalid is returned when a cookie cannot be decoded or authenticated
var ErrInvalid = errors.New("cookie: invalid value")

// Sealer encrypts and authenticates cookie values with AES-GCM
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a sealer from secret. Only the first 32 bytes are used as the key.
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes long", MinSecretLength)
	}

	block, err := aes.NewCipher(secret[:MinSecretLength])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext and returns a cookie-safe string. The cookie name is
// bound as additional data so a value cannot be replayed under another name.
func (s *Sealer) Seal(name string, plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nonce, nonce, plaintext, []byte(name))
	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal
func (s *Sealer) Open(name string, value string) ([]byte, error) {
	encrypted, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalid
	}

	nonceSize := s.aead.NonceSize()
	if len(encrypted) < nonceSize {
		return nil, ErrInvalid
	}

	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return nil, ErrInvalid
	}
	return plaintext, nil
}

// Options controls the attributes of written cookies
type Options struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// Write sets a sealed cookie on w
func (s *Sealer) Write(w http.ResponseWriter, name string, plaintext []byte, maxAge time.Duration, opts Options) error {
	if maxAge <= 0 {
		return fmt.Errorf("invalid cookie expiration time")
	}

	value, err := s.Seal(name, plaintext)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     pathOrRoot(opts.Path),
		Domain:   opts.Domain,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: sameSiteOrLax(opts.SameSite),
		MaxAge:   int(maxAge.Seconds()),
	})
	return nil
}

// Read returns the opened value of the named cookie. A missing cookie is
// reported as http.ErrNoCookie.
func (s *Sealer) Read(r *http.Request, name string) ([]byte, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return nil, err
	}
	return s.Open(name, c.Value)
}

// Clear expires the named cookie
func Clear(w http.ResponseWriter, name string, opts Options) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     pathOrRoot(opts.Path),
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
	})
}

func pathOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func sameSiteOrLax(s http.SameSite) http.SameSite {
	if s == 0 {
		return http.SameSiteLaxMode
	}
	return s
}
