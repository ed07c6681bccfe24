package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2/google"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

type FirebaseOptions struct {
	ProjectID string
	JWKSURL   string
	// HTTPClient fetches signing keys. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	Now        func() time.Time
}

// FirebaseVerifier checks Firebase Auth ID tokens against Google's
// secure-token signing keys. Keys are cached by the remote key set and
// refreshed when an unknown key id shows up.
type FirebaseVerifier struct {
	projectID string
	verifier  *oidc.IDTokenVerifier
	now       func() time.Time
	cancel    context.CancelFunc
}

type firebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	AuthTime      int64  `json:"auth_time"`
	Firebase      struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
}

func NewFirebaseVerifier(ctx context.Context, opts FirebaseOptions) (*FirebaseVerifier, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}
	if opts.JWKSURL == "" {
		return nil, errors.New("firebase jwks url is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// The key set keeps this context for background fetches; Close cancels it.
	keyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if opts.HTTPClient != nil {
		keyCtx = oidc.ClientContext(keyCtx, opts.HTTPClient)
	}
	keySet := oidc.NewRemoteKeySet(keyCtx, opts.JWKSURL)

	verifier := oidc.NewVerifier(firebaseIssuerPrefix+opts.ProjectID, keySet, &oidc.Config{
		ClientID: opts.ProjectID,
		Now:      opts.Now,
	})

	return &FirebaseVerifier{
		projectID: opts.ProjectID,
		verifier:  verifier,
		now:       opts.Now,
		cancel:    cancel,
	}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := checkSubject(token.Subject); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims firebaseClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode claims: %v", ErrInvalidToken, err)
	}
	if claims.AuthTime > 0 && time.Unix(claims.AuthTime, 0).After(v.now()) {
		return nil, fmt.Errorf("%w: auth_time is in the future", ErrInvalidToken)
	}

	return &Identity{
		Subject:       token.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
		Provider:      claims.Firebase.SignInProvider,
		IssuedAt:      token.IssuedAt,
		ExpiresAt:     token.Expiry,
	}, nil
}

func (v *FirebaseVerifier) ProjectID() string {
	return v.projectID
}

func (v *FirebaseVerifier) Close() error {
	v.cancel()
	return nil
}

// ProjectIDFromCredentials reads the project id out of a service-account key.
func ProjectIDFromCredentials(ctx context.Context, data []byte) (string, error) {
	creds, err := google.CredentialsFromJSON(ctx, data, "https://www.googleapis.com/auth/firebase")
	if err != nil {
		return "", fmt.Errorf("parse service account credentials: %w", err)
	}
	if creds.ProjectID == "" {
		return "", errors.New("service account credentials have no project_id")
	}
	return creds.ProjectID, nil
}
