package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/learnhub/server/internal/config"
)

func localAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Provider: config.AuthProviderLocal,
		Local:    config.LocalAuthConfig{Secret: testSecret, Issuer: config.DefaultLocalIssuer},
	}
}

func TestInitIsOnce(t *testing.T) {
	t.Cleanup(func() { _ = Shutdown() })

	first, err := Init(context.Background(), localAuthConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	other := localAuthConfig()
	other.Local.Secret = "a-completely-different-secret"
	second, err := Init(context.Background(), other)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}

	if first != second {
		t.Fatal("expected Init to return the same verifier")
	}
	if Default() != first {
		t.Fatal("expected Default to return the initialized verifier")
	}
}

func TestShutdownResetsState(t *testing.T) {
	first, err := Init(context.Background(), localAuthConfig())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if Default() != nil {
		t.Fatal("expected no verifier after Shutdown")
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}

	second, err := Init(context.Background(), localAuthConfig())
	if err != nil {
		t.Fatalf("Init after Shutdown: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })
	if first == second {
		t.Fatal("expected a fresh verifier after Shutdown")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := New(ctx, config.AuthConfig{Provider: "saml"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("firebase with explicit project", func(t *testing.T) {
		v, err := New(ctx, config.AuthConfig{
			Provider: config.AuthProviderFirebase,
			Firebase: config.FirebaseConfig{ProjectID: "learnhub-dev", JWKSURL: config.DefaultFirebaseJWKSURL},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer v.Close()

		fv, ok := v.(*FirebaseVerifier)
		if !ok || fv.ProjectID() != "learnhub-dev" {
			t.Fatalf("unexpected verifier %#v", v)
		}
	})

	t.Run("firebase project from credentials file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "service-account.json")
		if err := os.WriteFile(path, serviceAccountJSON(t, "learnhub-file"), 0o600); err != nil {
			t.Fatalf("write credentials: %v", err)
		}

		v, err := New(ctx, config.AuthConfig{
			Provider: config.AuthProviderFirebase,
			Firebase: config.FirebaseConfig{CredentialsFile: path, JWKSURL: config.DefaultFirebaseJWKSURL},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer v.Close()

		if fv := v.(*FirebaseVerifier); fv.ProjectID() != "learnhub-file" {
			t.Fatalf("expected learnhub-file, got %s", fv.ProjectID())
		}
	})

	t.Run("firebase without any project source", func(t *testing.T) {
		_, err := New(ctx, config.AuthConfig{
			Provider: config.AuthProviderFirebase,
			Firebase: config.FirebaseConfig{JWKSURL: config.DefaultFirebaseJWKSURL},
		})
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

type closeTrackingVerifier struct {
	closed atomic.Bool
}

func (v *closeTrackingVerifier) Verify(context.Context, string) (*Identity, error) {
	return nil, ErrInvalidToken
}

func (v *closeTrackingVerifier) Close() error {
	v.closed.Store(true)
	return nil
}

func TestShutdownDuringInitReleasesVerifier(t *testing.T) {
	built := &closeTrackingVerifier{}
	entered := make(chan struct{})
	release := make(chan struct{})

	newVerifier = func(context.Context, config.AuthConfig) (Verifier, error) {
		close(entered)
		<-release
		return built, nil
	}
	t.Cleanup(func() {
		newVerifier = New
		_ = Shutdown()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = Init(context.Background(), localAuthConfig())
	}()

	<-entered
	go func() {
		defer wg.Done()
		_ = Shutdown()
	}()
	close(release)
	wg.Wait()

	if Default() != nil {
		t.Fatal("expected no verifier after Shutdown")
	}
	if !built.closed.Load() {
		t.Fatal("expected the verifier built during Init to be closed by Shutdown")
	}
}
