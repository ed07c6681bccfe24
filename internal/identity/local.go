package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LocalVerifier accepts HS256 tokens signed with a shared secret. It stands in
// for Firebase in development and tests.
type LocalVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type LocalClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

func NewLocalVerifier(secret, issuer string) (*LocalVerifier, error) {
	if secret == "" {
		return nil, errors.New("local auth secret is required")
	}
	if issuer == "" {
		return nil, errors.New("local auth issuer is required")
	}
	return &LocalVerifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Mint signs a token for subject valid for ttl. A non-empty email is marked
// verified.
func (v *LocalVerifier) Mint(subject, email, name string, ttl time.Duration) (string, error) {
	return v.MintWithVerification(subject, email, name, email != "", ttl)
}

// MintWithVerification is Mint with an explicit email_verified claim.
func (v *LocalVerifier) MintWithVerification(subject, email, name string, verified bool, ttl time.Duration) (string, error) {
	now := v.now()
	claims := LocalClaims{
		Email:         email,
		EmailVerified: verified,
		Name:          name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			Audience:  jwt.ClaimStrings{v.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *LocalVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &LocalClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := checkSubject(claims.Subject); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	ident := &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
		Provider:      "local",
	}
	if claims.IssuedAt != nil {
		ident.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	return ident, nil
}

func (v *LocalVerifier) Close() error {
	return nil
}
