package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/learnhub/server/internal/models"
	"github.com/learnhub/server/internal/services"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestID").(string)
	return id
}

func userAudit(c *fiber.Ctx, actor *models.User, action string, target uuid.UUID, details map[string]interface{}) services.AuditEntry {
	entry := services.AuditEntry{
		Action:       action,
		ResourceType: "user",
		ResourceID:   &target,
		Details:      details,
		IPAddress:    c.IP(),
		RequestID:    requestID(c),
	}
	if actor != nil {
		entry.UserID = &actor.ID
	}
	return entry
}

func optionalString(values ...string) *string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return &v
		}
	}
	return nil
}
