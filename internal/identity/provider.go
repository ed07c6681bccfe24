package identity

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/learnhub/server/internal/config"
	"github.com/learnhub/server/pkg/logger"
)

// mu is held for the whole of Init and Shutdown so a verifier is never
// installed after the Shutdown that should have released it.
var (
	mu       sync.Mutex
	initOnce = new(sync.Once)
	current  Verifier
	initErr  error

	newVerifier = New
)

// New builds the verifier selected by cfg.Provider.
func New(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Provider {
	case config.AuthProviderFirebase:
		projectID, err := resolveProjectID(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		return NewFirebaseVerifier(ctx, FirebaseOptions{
			ProjectID: projectID,
			JWKSURL:   cfg.Firebase.JWKSURL,
		})
	case config.AuthProviderLocal:
		return NewLocalVerifier(cfg.Local.Secret, cfg.Local.Issuer)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}

func resolveProjectID(ctx context.Context, cfg config.FirebaseConfig) (string, error) {
	if cfg.ProjectID != "" {
		return cfg.ProjectID, nil
	}

	data := []byte(cfg.CredentialsJSON)
	if len(data) == 0 && cfg.CredentialsFile != "" {
		var err error
		data, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return "", fmt.Errorf("read firebase credentials: %w", err)
		}
	}
	if len(data) == 0 {
		return "", fmt.Errorf("firebase project id is not configured")
	}
	return ProjectIDFromCredentials(ctx, data)
}

// Init builds the process-wide verifier once. Later calls return the same
// verifier (or the same error) until Shutdown.
func Init(ctx context.Context, cfg config.AuthConfig) (Verifier, error) {
	mu.Lock()
	defer mu.Unlock()

	initOnce.Do(func() {
		v, err := newVerifier(ctx, cfg)
		if err != nil {
			v = nil
		}
		current, initErr = v, err
		if err != nil {
			logger.Error("identity_init_failed", err, map[string]interface{}{"provider": cfg.Provider})
			return
		}
		logger.Info("identity_initialized", map[string]interface{}{"provider": cfg.Provider})
	})

	return current, initErr
}

// Default returns the verifier installed by Init, or nil.
func Default() Verifier {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Shutdown releases the process-wide verifier. A later Init starts over.
func Shutdown() error {
	mu.Lock()
	v := current
	current, initErr = nil, nil
	initOnce = new(sync.Once)
	mu.Unlock()

	if v == nil {
		return nil
	}
	return v.Close()
}
