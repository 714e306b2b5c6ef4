package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/services"
	"github.com/koinonia/backend/pkg/utils"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// serviceError maps the service layer's error taxonomy onto HTTP.
// Anything unrecognized is a transient failure the client may retry.
func serviceError(c *fiber.Ctx, err error) error {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		return utils.Error(c, fiber.StatusBadRequest, ve.Error())
	case errors.Is(err, services.ErrPermissionDenied):
		return utils.Error(c, fiber.StatusForbidden, "permission denied")
	case errors.Is(err, services.ErrNotFound):
		return utils.Error(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, services.ErrCapacityExceeded):
		return utils.Error(c, fiber.StatusConflict, "event is full")
	case errors.Is(err, services.ErrEventCancelled):
		return utils.Error(c, fiber.StatusConflict, "event is cancelled")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "temporary failure, try again")
	}
}
