package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/health"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type HealthChecker interface {
	Check(ctx context.Context) bool
	Status() health.Status
}

type StatusSource interface {
	PlatformStatus(ctx context.Context, platform string) (*transfer.PlatformStatus, error)
}

type PlatformHandler struct {
	hc HealthChecker
	ss StatusSource
}

func NewPlatformHandler(hc HealthChecker, ss StatusSource) *PlatformHandler {
	return &PlatformHandler{hc: hc, ss: ss}
}

// Health probes the backend now and reports the refreshed cache.
func (h *PlatformHandler) Health(c *fiber.Ctx) error {
	h.hc.Check(c.Context())
	status := h.hc.Status()

	code := fiber.StatusOK
	if !status.Online {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

func (h *PlatformHandler) PlatformStatus(c *fiber.Ctx) error {
	status, err := h.ss.PlatformStatus(c.Context(), c.Params("platform"))
	if err != nil {
		return sendError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
