package handlers

import (
	"errors"
	"strconv"

	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		validation *models.ValidationError
		transition *models.InvalidStateTransitionError
		apply      *models.ApplyError
	)
	switch {
	case errors.As(err, &validation):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &transition):
		return fiber.StatusConflict
	case errors.As(err, &apply):
		return fiber.StatusBadGateway
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func errorBody(c *fiber.Ctx, err error, status int, data any) dto.ErrorResponse {
	resp := dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c), Data: data}
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}
	if status == fiber.StatusInternalServerError {
		resp.Error = "internal error"
	}
	return resp
}

// respondError writes err with its mapped status. data, when set, is
// returned alongside the error (an approve that failed to apply still
// reports the decision).
func respondError(c *fiber.Ctx, log *zap.Logger, err error, data any) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(errorBody(c, err, status, data))
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "permission denied", RequestID: middleware.GetRequestID(c)})
}

// pagination reads limit and offset, ignoring values that do not parse.
func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = 20
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
