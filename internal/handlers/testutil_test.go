package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/learnhub/server/internal/database"
	"github.com/learnhub/server/internal/identity"
	"github.com/learnhub/server/internal/middleware"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/services"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
	"gorm.io/gorm"
)

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	users    *store.UserStore
	audit    *services.AuditService
	verifier *identity.LocalVerifier
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}

	verifier, err := identity.NewLocalVerifier("handlers-test-secret-0123", "learnhub-local")
	if err != nil {
		t.Fatalf("failed creating verifier: %v", err)
	}

	users := store.NewUserStore(db)
	auditService := services.NewAuditService(db, 100)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = auditService.Close(ctx)
	})
	syncService := services.NewSyncService(users, auditService)

	app := NewApp(AppDeps{
		Auth:        middleware.NewAuthMiddleware(verifier, users, syncService),
		Users:       users,
		Sync:        syncService,
		Audit:       auditService,
		FrontendURL: "http://localhost:3000",
		HealthCheck: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
	})

	return &testEnv{app: app, db: db, users: users, audit: auditService, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, uid, email, name string) string {
	t.Helper()

	token, err := e.verifier.Mint(uid, email, name, time.Hour)
	if err != nil {
		t.Fatalf("failed minting token: %v", err)
	}
	return token
}

func createTestUser(t *testing.T, env *testEnv, uid, email string, role models.UserRole) (*models.User, string) {
	t.Helper()

	user := &models.User{
		FirebaseUID: &uid,
		Email:       email,
		Role:        role,
		IsActive:    true,
	}
	if err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	return user, env.token(t, uid, email, "Test User")
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
