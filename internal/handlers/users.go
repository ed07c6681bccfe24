package handlers

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/learnhub/server/internal/middleware"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/services"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
	"github.com/learnhub/server/pkg/utils"
)

type UsersHandler struct {
	Users *store.UserStore
	Audit *services.AuditService
}

func NewUsersHandler(users *store.UserStore, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{Users: users, Audit: audit}
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	role := models.UserRole(strings.ToUpper(strings.TrimSpace(c.Query("role"))))
	if role != "" && !role.IsValid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	users, total, err := h.Users.List(c.UserContext(), store.ListFilter{
		Search: c.Query("search"),
		Role:   role,
		Offset: p.Offset,
		Limit:  p.Limit,
	})
	if err != nil {
		logger.Error("list_users_failed", err, nil)
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	user, err := h.Users.FindByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	return utils.Success(c, fiber.StatusOK, user)
}

type updateRoleRequest struct {
	Role models.UserRole `json:"role"`
}

func (r updateRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.Required, validation.In(
			models.UserRoleStudent,
			models.UserRoleInstructor,
			models.UserRoleAdmin,
		).Error("must be one of STUDENT, INSTRUCTOR, ADMIN")),
	)
}

func (h *UsersHandler) UpdateRole(c *fiber.Ctx) error {
	current := middleware.GetCurrentUser(c)
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req updateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Role = models.UserRole(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	if err := req.Validate(); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	if userID == current.ID && req.Role != models.UserRoleAdmin {
		return utils.Error(c, fiber.StatusBadRequest, "cannot remove your own admin role")
	}

	before, err := h.Users.FindByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	user, err := h.Users.SetRole(c.UserContext(), userID, req.Role)
	if err != nil {
		logger.ErrorWithUser(current.ID.String(), "update_role_failed", err, map[string]interface{}{
			"target_user_id": userID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating role")
	}

	h.Audit.LogAsync(userAudit(c, current, services.AuditActionRoleChange, user.ID, map[string]interface{}{
		"from": string(before.Role),
		"to":   string(user.Role),
	}))
	logger.InfoWithUser(current.ID.String(), "user_role_changed", map[string]interface{}{
		"target_user_id": user.ID.String(),
		"role":           string(user.Role),
	})

	return utils.Success(c, fiber.StatusOK, user)
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

func (h *UsersHandler) SetActive(c *fiber.Ctx) error {
	current := middleware.GetCurrentUser(c)
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.IsActive == nil {
		return utils.Error(c, fiber.StatusBadRequest, "isActive is required")
	}
	if userID == current.ID && !*req.IsActive {
		return utils.Error(c, fiber.StatusBadRequest, "cannot deactivate your own account")
	}

	user, err := h.Users.SetActive(c.UserContext(), userID, *req.IsActive)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		logger.ErrorWithUser(current.ID.String(), "set_active_failed", err, map[string]interface{}{
			"target_user_id": userID.String(),
		})
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	h.Audit.LogAsync(userAudit(c, current, services.AuditActionActiveChange, user.ID, map[string]interface{}{
		"isActive": user.IsActive,
	}))

	return utils.Success(c, fiber.StatusOK, user)
}

func (h *UsersHandler) AuditTrail(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	if h.Audit == nil {
		return utils.Success(c, fiber.StatusOK, []models.AuditLog{})
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	rows, err := h.Audit.ForUser(c.UserContext(), userID, limit)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching audit log")
	}
	return utils.Success(c, fiber.StatusOK, rows)
}
