package handlers

import (
	"errors"
	"fmt"
	"strconv"

	errprocess "hls_transcode_service/pkg/err"
	"hls_transcode_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ConnectCheck check api connect start
// @Summary Check transcode api status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "transcode api start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("transcode api start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging
// @Tags Shared
// @Param status query bool true "Debug status"
// @Security BearerAuth
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {object} ErrorRes "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid status value"})
	}

	logger.Log.Info("debug", zap.Bool("status", status))
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// ErrorRes error response
type ErrorRes struct {
	Error string `json:"error"`
}

// statusOf error kind -> http status
func statusOf(err error) int {
	switch {
	case errors.Is(err, errprocess.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, errprocess.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, errprocess.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, errprocess.ErrAccessDenied):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	if status == fiber.StatusInternalServerError {
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
