package network

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

var (
	ErrAuthRequired = errors.New("network: authentication required")
	ErrAuthFailed   = errors.New("network: authentication failed")
)

// authenticator checks request tokens against a shared secret. An empty
// secret disables authentication.
type authenticator struct {
	token []byte
}

func newAuthenticator(token string) *authenticator {
	return &authenticator{token: []byte(token)}
}

func (a *authenticator) enabled() bool { return len(a.token) > 0 }

func (a *authenticator) validate(provided string) error {
	if !a.enabled() {
		return nil
	}
	if provided == "" {
		return ErrAuthRequired
	}
	if subtle.ConstantTimeCompare(a.token, []byte(provided)) != 1 {
		return ErrAuthFailed
	}
	return nil
}

// GenerateToken returns a random 256-bit token in hex.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
