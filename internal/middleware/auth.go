package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/learnhub/server/internal/identity"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/services"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
	"github.com/learnhub/server/pkg/utils"
)

const (
	currentUserKey = "currentUser"
	identityKey    = "identity"
	userIDKey      = "userID"
	requestIDKey   = "requestID"
)

// Stages of a request through the auth chain, recorded on rejections.
const (
	stageUnauthenticated = "unauthenticated"
	stageTokenVerified   = "token_verified"
	stageUserResolved    = "user_resolved"
)

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization format")
)

type AuthMiddleware struct {
	Verifier identity.Verifier
	Users    *store.UserStore
	Sync     *services.SyncService
}

func NewAuthMiddleware(verifier identity.Verifier, users *store.UserStore, sync *services.SyncService) *AuthMiddleware {
	return &AuthMiddleware{Verifier: verifier, Users: users, Sync: sync}
}

func CORS(frontendURL string) fiber.Handler {
	origins := "http://localhost:3000,http://127.0.0.1:3000"
	if frontendURL != "" {
		origins = frontendURL
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	scheme, tokenString, found := strings.Cut(authHeader, " ")
	tokenString = strings.TrimSpace(tokenString)
	if !found || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
		return "", ErrInvalidAuthFormat
	}
	return tokenString, nil
}

// VerifyRequest extracts and verifies the bearer token. Errors are
// ErrMissingAuthHeader, ErrInvalidAuthFormat or wrap identity.ErrInvalidToken.
func (a *AuthMiddleware) VerifyRequest(c *fiber.Ctx) (*identity.Identity, error) {
	tokenString, err := BearerToken(c)
	if err != nil {
		return nil, err
	}
	return a.Verifier.Verify(c.UserContext(), tokenString)
}

// RejectUnverified writes the 401 for an error returned by VerifyRequest.
func RejectUnverified(c *fiber.Ctx, err error) error {
	details := map[string]interface{}{
		"ip":    c.IP(),
		"path":  c.Path(),
		"stage": stageUnauthenticated,
	}

	switch {
	case errors.Is(err, ErrMissingAuthHeader):
		logger.Warn("auth_missing_header", details)
		return utils.Error(c, fiber.StatusUnauthorized, ErrMissingAuthHeader.Error())
	case errors.Is(err, ErrInvalidAuthFormat):
		authHeader := c.Get("Authorization")
		details["auth_header"] = truncateRunes(authHeader, 20) + "..."
		logger.Warn("auth_invalid_format", details)
		return utils.Error(c, fiber.StatusUnauthorized, ErrInvalidAuthFormat.Error())
	default:
		details["error"] = err.Error()
		logger.Warn("auth_token_rejected", details)
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}
}

// RequireAuth resolves the verified subject to an existing local user.
// Unknown subjects are rejected; see SyncAuth for auto-creation.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	ident, err := a.VerifyRequest(c)
	if err != nil {
		return RejectUnverified(c, err)
	}

	user, err := a.Users.FindByProviderUID(c.UserContext(), ident.Subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			logger.Warn("auth_user_not_found", map[string]interface{}{
				"ip":      c.IP(),
				"path":    c.Path(),
				"subject": ident.Subject,
				"stage":   stageTokenVerified,
			})
			return utils.Error(c, fiber.StatusUnauthorized, "user not found")
		}
		logger.Error("auth_user_lookup_failed", err, map[string]interface{}{
			"path":  c.Path(),
			"stage": stageTokenVerified,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to resolve user")
	}

	if !user.IsActive {
		return rejectInactive(c, user)
	}

	attach(c, ident, user)
	return c.Next()
}

// SyncAuth resolves the verified subject through the sync service, creating
// the local user on first sight.
func (a *AuthMiddleware) SyncAuth(c *fiber.Ctx) error {
	ident, err := a.VerifyRequest(c)
	if err != nil {
		return RejectUnverified(c, err)
	}

	user, _, err := a.Sync.SyncIdentity(c.UserContext(), services.SyncInput{
		Subject:       ident.Subject,
		Email:         ident.Email,
		EmailVerified: ident.EmailVerified,
		DisplayName:   &ident.Name,
		PhotoURL:      &ident.Picture,
		IPAddress:     c.IP(),
		RequestID:     requestID(c),
	})
	if err != nil {
		details := map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"subject": ident.Subject,
			"stage":   stageTokenVerified,
		}
		switch {
		case errors.Is(err, services.ErrAccountInactive):
			logger.Warn("auth_account_inactive", details)
			return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
		case errors.Is(err, services.ErrMissingEmail), errors.Is(err, services.ErrMissingSubject):
			logger.Warn("auth_identity_incomplete", details)
			return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
		case errors.Is(err, store.ErrDuplicateEmail):
			logger.Warn("auth_email_conflict", details)
			return utils.Error(c, fiber.StatusConflict, "email already belongs to another account")
		default:
			logger.Error("auth_sync_failed", err, details)
			return utils.Error(c, fiber.StatusInternalServerError, "failed to sync user")
		}
	}

	attach(c, ident, user)
	return c.Next()
}

// OptionalAuth attaches the user when a valid token for an active user is
// present and never rejects.
func (a *AuthMiddleware) OptionalAuth(c *fiber.Ctx) error {
	ident, err := a.VerifyRequest(c)
	if err != nil {
		return c.Next()
	}

	user, err := a.Users.FindByProviderUID(c.UserContext(), ident.Subject)
	if err != nil || !user.IsActive {
		return c.Next()
	}

	attach(c, ident, user)
	return c.Next()
}

// RequireRole must run after RequireAuth or SyncAuth.
func RequireRole(roles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil {
			return utils.Error(c, fiber.StatusUnauthorized, "authentication required")
		}
		if !user.HasRole(roles...) {
			logger.WarnWithUser(user.ID.String(), "auth_insufficient_role", map[string]interface{}{
				"path":  c.Path(),
				"role":  string(user.Role),
				"stage": stageUserResolved,
			})
			return utils.Error(c, fiber.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

func AdminOnly(c *fiber.Ctx) error {
	return RequireRole(models.UserRoleAdmin)(c)
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

func GetIdentity(c *fiber.Ctx) *identity.Identity {
	ident, _ := c.Locals(identityKey).(*identity.Identity)
	return ident
}

func attach(c *fiber.Ctx, ident *identity.Identity, user *models.User) {
	c.Locals(identityKey, ident)
	c.Locals(currentUserKey, user)
	c.Locals(userIDKey, user.ID.String())
}

func rejectInactive(c *fiber.Ctx, user *models.User) error {
	logger.WarnWithUser(user.ID.String(), "auth_account_inactive", map[string]interface{}{
		"ip":    c.IP(),
		"path":  c.Path(),
		"stage": stageUserResolved,
	})
	return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
