package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

const signatureSeparator = "."

// Signer binds session ids to a server secret with HMAC-SHA256. Signed values have the
// form "<sid>.<base64url signature>".
type Signer struct {
	secret []byte
	salt   []byte
}

// NewSigner creates a signer. The salt separates session signatures from other uses of
// the same secret.
func NewSigner(secret, salt string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session signer secret is required")
	}
	return &Signer{secret: []byte(secret), salt: []byte(salt)}, nil
}

// Sign returns value with its signature appended.
func (s *Signer) Sign(value string) string {
	return value + signatureSeparator + base64.RawURLEncoding.EncodeToString(s.mac(value))
}

// Unsign verifies signed and returns the original value.
func (s *Signer) Unsign(signed string) (string, error) {
	idx := strings.LastIndex(signed, signatureSeparator)
	if idx <= 0 || idx == len(signed)-1 {
		return "", ErrInvalidSignature
	}
	value, encoded := signed[:idx], signed[idx+1:]
	received, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidSignature
	}
	if !hmac.Equal(s.mac(value), received) {
		return "", ErrInvalidSignature
	}
	return value, nil
}

func (s *Signer) mac(value string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(s.salt)
	mac.Write([]byte(signatureSeparator))
	mac.Write([]byte(value))
	return mac.Sum(nil)
}
