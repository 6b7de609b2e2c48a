package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/backend"
	"github.com/maheshrc27/postflow/internal/media"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func errorStatus(err error) int {
	var rejected *backend.RemoteRejectedError
	var unreachable *backend.UnreachableError
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, media.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrAlreadyInProgress):
		return fiber.StatusConflict
	case errors.Is(err, service.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &rejected), errors.As(err, &unreachable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func sendError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path(), "user_id", GetUserID(c))
	} else {
		slog.Info(err.Error(), "path", c.Path(), "user_id", GetUserID(c))
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
