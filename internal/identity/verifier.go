// Package identity verifies identity-provider ID tokens.
//
// Exactly one Verifier implementation is chosen from configuration at
// startup. Callers depend on the Verifier interface only.
package identity

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the verified content of an ID token.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	Provider      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

type Verifier interface {
	// Verify checks signature, issuer, audience and expiry of rawToken.
	// Every failure wraps ErrInvalidToken.
	Verify(ctx context.Context, rawToken string) (*Identity, error)
	Close() error
}

const maxSubjectLength = 128

func checkSubject(sub string) error {
	if sub == "" {
		return errors.New("token has no subject")
	}
	if len(sub) > maxSubjectLength {
		return errors.New("token subject exceeds 128 characters")
	}
	return nil
}
