package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/learnhub/server/internal/cli/output"
	"github.com/learnhub/server/internal/cli/session"
	"github.com/learnhub/server/internal/identity"
)

type fakeBackend struct {
	mu          sync.Mutex
	authHeaders []string
	syncBodies  []map[string]string
	syncStatus  int
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()

	switch r.URL.Path {
	case "/identitytoolkit.googleapis.com/v1/accounts:signUp",
		"/identitytoolkit.googleapis.com/v1/accounts:signInWithPassword":
		_, _ = w.Write([]byte(`{"idToken":"id-1","refreshToken":"rt-1","expiresIn":"3600","localId":"uid-1","email":"ada@x.com"}`))
	case "/securetoken.googleapis.com/v1/token":
		_, _ = w.Write([]byte(`{"id_token":"id-2","refresh_token":"rt-2","expires_in":"3600","user_id":"uid-1"}`))
	case "/api/auth/sync":
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.syncBodies = append(f.syncBodies, body)
		status := f.syncStatus
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"success":false,"error":"account is deactivated"}`))
			return
		}
		name := body["name"]
		if name == "" {
			name = "Ada"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"user":    map[string]interface{}{"id": "u1", "email": "ada@x.com", "name": name, "role": "STUDENT", "isActive": true},
		})
	case "/api/auth/user":
		_, _ = w.Write([]byte(`{"success":true,"user":{"id":"u1","email":"ada@x.com","name":"Ada","role":"ADMIN","isActive":true}}`))
	case "/api/admin/users":
		if r.URL.Query().Get("role") != "" && r.URL.Query().Get("role") != "INSTRUCTOR" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"invalid role"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":[{"id":"u2","email":"prof@x.com","role":"INSTRUCTOR","isActive":true}],"pagination":{"page":1,"limit":20,"total":1,"totalPages":1}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"not found"}`))
	}
}

func (f *fakeBackend) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.authHeaders) == 0 {
		return ""
	}
	return f.authHeaders[len(f.authHeaders)-1]
}

func setupCLI(t *testing.T) (*fakeBackend, *httptest.Server) {
	t.Helper()
	backend := &fakeBackend{}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	t.Setenv(session.DirEnv, t.TempDir())
	t.Setenv(apiKeyEnv, "test-key")
	t.Setenv(authEmulatorEnv, strings.TrimPrefix(server.URL, "http://"))
	return backend, server
}

func resetFlags() {
	flagJSON, flagServerURL, flagAPIKey = false, "", ""
	flagEmail, flagPassword, flagName, flagToken = "", "", "", ""
	flagForget = false
	flagSearch, flagRole, flagPage, flagLimit = "", "", 0, 0
	flagSubject, flagSecret, flagIssuer, flagTTL = "", "", "", time.Hour
	sess, apiClient = nil, nil
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var buf bytes.Buffer
	prev := output.Out
	output.Out = &buf
	t.Cleanup(func() { output.Out = prev })

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func loadSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.Load()
	if err != nil {
		t.Fatalf("loading session: %v", err)
	}
	return s
}

func TestLogin(t *testing.T) {
	t.Run("with token stores session and user", func(t *testing.T) {
		backend, server := setupCLI(t)

		out, err := runCLI(t, "login", "--token", "tok-1", "--server", server.URL)
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if !strings.Contains(out, "Logged in as Ada") {
			t.Fatalf("unexpected output %q", out)
		}
		if backend.lastAuth() != "Bearer tok-1" {
			t.Fatalf("expected sync with token, got %q", backend.lastAuth())
		}

		s := loadSession(t)
		if s.Token != "tok-1" || s.ServerURL != server.URL {
			t.Fatalf("unexpected session %+v", s)
		}
		if s.User == nil || s.User.Email != "ada@x.com" {
			t.Fatalf("expected cached user, got %+v", s.User)
		}
	})

	t.Run("with password signs in through the provider", func(t *testing.T) {
		backend, server := setupCLI(t)

		if _, err := runCLI(t, "login", "--email", "ada@x.com", "--password", "pw", "--server", server.URL); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if backend.lastAuth() != "Bearer id-1" {
			t.Fatalf("expected provider ID token, got %q", backend.lastAuth())
		}
		s := loadSession(t)
		if s.RefreshToken != "rt-1" || s.ExpiresAt.IsZero() {
			t.Fatalf("expected refresh token and expiry, got %+v", s)
		}
		if s.FirebaseAPIKey != "test-key" {
			t.Fatalf("expected api key to be saved, got %q", s.FirebaseAPIKey)
		}
	})

	t.Run("requires credentials", func(t *testing.T) {
		setupCLI(t)
		_, err := runCLI(t, "login")
		if err == nil || !strings.Contains(err.Error(), "--token") {
			t.Fatalf("expected usage error, got %v", err)
		}
	})

	t.Run("server rejection leaves no session", func(t *testing.T) {
		backend, server := setupCLI(t)
		backend.syncStatus = http.StatusForbidden

		_, err := runCLI(t, "login", "--token", "tok-1", "--server", server.URL)
		if err == nil || !strings.Contains(err.Error(), "account is deactivated") {
			t.Fatalf("expected server message, got %v", err)
		}
		if loadSession(t).HasToken() {
			t.Fatalf("did not expect a stored token")
		}
	})
}

func TestSignup(t *testing.T) {
	backend, server := setupCLI(t)

	out, err := runCLI(t, "signup", "--email", "ada@x.com", "--password", "pw", "--name", "Ada Lovelace", "--server", server.URL)
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if !strings.Contains(out, "Signed up as Ada Lovelace (STUDENT)") {
		t.Fatalf("unexpected output %q", out)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.syncBodies) != 1 || backend.syncBodies[0]["name"] != "Ada Lovelace" {
		t.Fatalf("expected name override in sync body, got %v", backend.syncBodies)
	}
}

func TestWhoami(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		setupCLI(t)
		_, err := runCLI(t, "whoami")
		if err == nil || !strings.Contains(err.Error(), "not authenticated") {
			t.Fatalf("expected auth error, got %v", err)
		}
	})

	t.Run("refreshes an expiring token first", func(t *testing.T) {
		backend, server := setupCLI(t)
		if err := session.Save(&session.Session{
			ServerURL:    server.URL,
			Token:        "id-old",
			RefreshToken: "rt-1",
			ExpiresAt:    time.Now().Add(-time.Minute),
		}); err != nil {
			t.Fatalf("saving session: %v", err)
		}

		out, err := runCLI(t, "whoami")
		if err != nil {
			t.Fatalf("whoami failed: %v", err)
		}
		if backend.lastAuth() != "Bearer id-2" {
			t.Fatalf("expected refreshed token, got %q", backend.lastAuth())
		}
		if !strings.Contains(out, "ada@x.com") {
			t.Fatalf("unexpected output %q", out)
		}

		s := loadSession(t)
		if s.Token != "id-2" || s.RefreshToken != "rt-2" {
			t.Fatalf("expected refreshed session, got %+v", s)
		}
		if s.User == nil || s.User.Role != "ADMIN" {
			t.Fatalf("expected cached role update, got %+v", s.User)
		}
	})
}

func TestUsersList(t *testing.T) {
	_, server := setupCLI(t)
	if err := session.Save(&session.Session{ServerURL: server.URL, Token: "tok"}); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	out, err := runCLI(t, "users", "list", "--role", "instructor", "--json")
	if err != nil {
		t.Fatalf("users list failed: %v", err)
	}
	var resp struct {
		Data []struct {
			Email string `json:"email"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("expected JSON output: %v\n%s", err, out)
	}
	if len(resp.Data) != 1 || resp.Data[0].Email != "prof@x.com" {
		t.Fatalf("unexpected users %+v", resp.Data)
	}
}

func TestLogout(t *testing.T) {
	_, server := setupCLI(t)
	if err := session.Save(&session.Session{ServerURL: server.URL, Token: "tok", User: &session.User{Email: "ada@x.com"}}); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	if _, err := runCLI(t, "logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	s := loadSession(t)
	if s.HasToken() || s.User != nil {
		t.Fatalf("expected signed-out session, got %+v", s)
	}
	if s.ServerURL != server.URL {
		t.Fatalf("expected server URL to be kept, got %q", s.ServerURL)
	}

	if _, err := runCLI(t, "logout", "--forget"); err != nil {
		t.Fatalf("logout --forget failed: %v", err)
	}
	if loadSession(t).ServerURL != session.DefaultURL {
		t.Fatalf("expected session file to be removed")
	}
}

func TestDevToken(t *testing.T) {
	setupCLI(t)
	secret := "0123456789abcdef0123"
	t.Setenv("LOCAL_AUTH_SECRET", secret)

	out, err := runCLI(t, "dev-token", "--subject", "dev-1", "--email", "dev@x.com", "--ttl", "5m")
	if err != nil {
		t.Fatalf("dev-token failed: %v", err)
	}

	v, err := identity.NewLocalVerifier(secret, "learnhub-local")
	if err != nil {
		t.Fatalf("creating verifier: %v", err)
	}
	ident, err := v.Verify(context.Background(), strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("minted token did not verify: %v", err)
	}
	if ident.Subject != "dev-1" || ident.Email != "dev@x.com" {
		t.Fatalf("unexpected identity %+v", ident)
	}
}
