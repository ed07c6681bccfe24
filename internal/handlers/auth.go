package handlers

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/learnhub/server/internal/middleware"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/services"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
	"github.com/learnhub/server/pkg/utils"
)

type AuthHandler struct {
	Auth   *middleware.AuthMiddleware
	Users  *store.UserStore
	Syncer *services.SyncService
	Audit  *services.AuditService
}

func NewAuthHandler(auth *middleware.AuthMiddleware, users *store.UserStore, sync *services.SyncService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{Auth: auth, Users: users, Syncer: sync, Audit: audit}
}

type syncRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Sync verifies the bearer token itself and upserts the local user. Profile
// fields in the body take precedence over the token's claims.
func (h *AuthHandler) Sync(c *fiber.Ctx) error {
	ident, err := h.Auth.VerifyRequest(c)
	if err != nil {
		return middleware.RejectUnverified(c, err)
	}

	var req syncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	user, _, err := h.Syncer.SyncIdentity(c.UserContext(), services.SyncInput{
		Subject:       ident.Subject,
		Email:         ident.Email,
		EmailVerified: ident.EmailVerified,
		DisplayName:   optionalString(req.Name, ident.Name),
		PhotoURL:      optionalString(req.Avatar, ident.Picture),
		IPAddress:     c.IP(),
		RequestID:     requestID(c),
	})
	if err != nil {
		return syncError(c, err)
	}

	c.Locals("userID", user.ID.String())
	return utils.UserResponse(c, fiber.StatusOK, user)
}

// SyncUser runs behind SyncAuth and answers with the reduced profile.
func (h *AuthHandler) SyncUser(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "authentication required")
	}
	return utils.UserResponse(c, fiber.StatusOK, user.Profile())
}

func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	ident, err := h.Auth.VerifyRequest(c)
	if err != nil {
		return middleware.RejectUnverified(c, err)
	}

	user, err := h.Users.FindByProviderUID(c.UserContext(), ident.Subject)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		logger.Error("get_user_failed", err, map[string]interface{}{"subject": ident.Subject})
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}
	if !user.IsActive {
		return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
	}

	c.Locals("userID", user.ID.String())
	return utils.UserResponse(c, fiber.StatusOK, user)
}

func (h *AuthHandler) VerifyToken(c *fiber.Ctx) error {
	return utils.UserResponse(c, fiber.StatusOK, middleware.GetCurrentUser(c))
}

type simpleSignupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (r simpleSignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
	)
}

// SimpleSignup records a user before any provider login. The row has no
// provider uid until the first sync with the same email claims it.
func (h *AuthHandler) SimpleSignup(c *fiber.Ctx) error {
	var req simpleSignupRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	user := &models.User{
		Email:    req.Email,
		Name:     &req.Name,
		Role:     models.UserRoleStudent,
		IsActive: true,
	}
	if err := h.Users.Create(c.UserContext(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return utils.Error(c, fiber.StatusConflict, "User already exists")
		}
		logger.Error("simple_signup_failed", err, map[string]interface{}{"email": req.Email})
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	h.Audit.LogAsync(userAudit(c, nil, services.AuditActionUserSignup, user.ID, map[string]interface{}{
		"email": user.Email,
	}))
	logger.Info("simple_signup", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	return utils.UserResponse(c, fiber.StatusOK, user)
}

type lineLinkRequest struct {
	LineUserID string `json:"lineUserId"`
}

func (r lineLinkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.LineUserID, validation.Required, validation.Length(1, 64)),
	)
}

func (h *AuthHandler) LinkLine(c *fiber.Ctx) error {
	current := middleware.GetCurrentUser(c)

	var req lineLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.LineUserID = strings.TrimSpace(req.LineUserID)
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	user, err := h.Users.LinkLine(c.UserContext(), current.ID, req.LineUserID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateLine) {
			return utils.Error(c, fiber.StatusConflict, "LINE account is already linked to another user")
		}
		logger.ErrorWithUser(current.ID.String(), "line_link_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed linking LINE account")
	}

	h.Audit.LogAsync(userAudit(c, current, services.AuditActionLineLink, user.ID, nil))
	return utils.UserResponse(c, fiber.StatusOK, user.Profile())
}

func (h *AuthHandler) UnlinkLine(c *fiber.Ctx) error {
	current := middleware.GetCurrentUser(c)

	user, err := h.Users.UnlinkLine(c.UserContext(), current.ID)
	if err != nil {
		logger.ErrorWithUser(current.ID.String(), "line_unlink_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed unlinking LINE account")
	}

	h.Audit.LogAsync(userAudit(c, current, services.AuditActionLineUnlink, user.ID, nil))
	return utils.UserResponse(c, fiber.StatusOK, user.Profile())
}

func syncError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrMissingEmail):
		return utils.Error(c, fiber.StatusBadRequest, "token has no email claim")
	case errors.Is(err, services.ErrMissingSubject):
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, services.ErrAccountInactive):
		return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
	case errors.Is(err, store.ErrDuplicateEmail):
		return utils.Error(c, fiber.StatusConflict, "email already belongs to another account")
	default:
		logger.Error("user_sync_failed", err, map[string]interface{}{"path": c.Path()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed to sync user")
	}
}
