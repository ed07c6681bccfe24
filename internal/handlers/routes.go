package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/learnhub/server/internal/middleware"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/services"
	"github.com/learnhub/server/internal/store"
	"github.com/learnhub/server/pkg/logger"
	"github.com/learnhub/server/pkg/utils"
)

type AppDeps struct {
	Auth        *middleware.AuthMiddleware
	Users       *store.UserStore
	Sync        *services.SyncService
	Audit       *services.AuditService
	FrontendURL string
	// HealthCheck reports whether the database is reachable.
	HealthCheck func(ctx context.Context) error
}

func NewApp(deps AppDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: ErrorHandler,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(deps.FrontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.UserContext()); err != nil {
				logger.Error("health_check_failed", err, nil)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	authHandler := NewAuthHandler(deps.Auth, deps.Users, deps.Sync, deps.Audit)
	usersHandler := NewUsersHandler(deps.Users, deps.Audit)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/sync", authHandler.Sync)
	authRoutes.Post("/sync-user", deps.Auth.SyncAuth, authHandler.SyncUser)
	authRoutes.Get("/user", authHandler.GetUser)
	authRoutes.Post("/verify-token", deps.Auth.RequireAuth, authHandler.VerifyToken)
	authRoutes.Post("/simple-signup", authHandler.SimpleSignup)
	authRoutes.Post("/line", deps.Auth.RequireAuth, authHandler.LinkLine)
	authRoutes.Delete("/line", deps.Auth.RequireAuth, authHandler.UnlinkLine)

	adminRoutes := api.Group("/admin/users", deps.Auth.RequireAuth)
	adminRoutes.Get("/", middleware.RequireRole(models.UserRoleInstructor, models.UserRoleAdmin), usersHandler.List)
	adminRoutes.Get("/:id", middleware.AdminOnly, usersHandler.Get)
	adminRoutes.Get("/:id/audit", middleware.AdminOnly, usersHandler.AuditTrail)
	adminRoutes.Put("/:id/role", middleware.AdminOnly, usersHandler.UpdateRole)
	adminRoutes.Put("/:id/active", middleware.AdminOnly, usersHandler.SetActive)

	return app
}

// ErrorHandler keeps errors returned from handlers and unmatched routes
// inside the JSON envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		message = fiberErr.Message
	}
	if status >= fiber.StatusInternalServerError {
		logger.Error("unhandled_error", err, map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
		})
	}
	return utils.Error(c, status, message)
}
