package handlers

import (
	"context"

	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/rbac"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/company-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Moderation is the part of services.ModerationService the handlers use.
type Moderation interface {
	Submit(ctx context.Context, actor models.Actor, in services.SubmitInput) (*models.ChangeRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error)
	List(ctx context.Context, f repositories.ChangeFilter) ([]models.ChangeRecord, error)
	ListUnapplied(ctx context.Context, limit int) ([]models.ChangeRecord, error)
	GetEvents(ctx context.Context, id uuid.UUID) ([]models.AuditLog, error)
	Approve(ctx context.Context, id uuid.UUID, approver models.Actor) (*services.Decision, error)
	Reject(ctx context.Context, id uuid.UUID, admin models.Actor, reason string) (*models.ChangeRecord, error)
	BatchApprove(ctx context.Context, ids []uuid.UUID, approver models.Actor) ([]services.BatchResult, error)
	BatchReject(ctx context.Context, ids []uuid.UUID, admin models.Actor, reason string) ([]services.BatchResult, error)
	RetryApply(ctx context.Context, id uuid.UUID, operator models.Actor) (*services.Decision, error)
}

var _ Moderation = (*services.ModerationService)(nil)

// ChangeHandler serves the company-facing change endpoints.
type ChangeHandler struct {
	moderation Moderation
	log        *zap.Logger
}

func NewChangeHandler(moderation Moderation, log *zap.Logger) *ChangeHandler {
	return &ChangeHandler{moderation: moderation, log: log}
}

func (h *ChangeHandler) SubmitChange(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid company id")
	}

	var req dto.SubmitChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	actor := middleware.GetActor(c)
	changeType := models.ChangeType(req.ChangeType)
	if !rbac.CanActOnCompany(actor.Role, middleware.GetCompanyID(c), companyID, changeType) {
		return forbidden(c)
	}

	record, err := h.moderation.Submit(c.UserContext(), actor, services.SubmitInput{
		CompanyID:   companyID,
		SubmitterID: &actor.UserID,
		ChangeType:  changeType,
		Payload:     req.Payload,
	})
	if err != nil {
		return respondError(c, h.log, err, nil)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: record})
}

func (h *ChangeHandler) ListCompanyChanges(c *fiber.Ctx) error {
	companyID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid company id")
	}

	actor := middleware.GetActor(c)
	if !rbac.CanActOnCompany(actor.Role, middleware.GetCompanyID(c), companyID, "") {
		return forbidden(c)
	}

	filter, err := changeFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	filter.CompanyID = &companyID

	records, err := h.moderation.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: records})
}

// changeFilter reads the status, change_type and pagination query params.
func changeFilter(c *fiber.Ctx) (repositories.ChangeFilter, error) {
	var f repositories.ChangeFilter
	f.Limit, f.Offset = pagination(c)

	if v := c.Query("status"); v != "" {
		switch v {
		case models.ChangeStatusPending, models.ChangeStatusApproved, models.ChangeStatusRejected:
			f.Status = &v
		default:
			return f, fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
	}
	if v := c.Query("change_type"); v != "" {
		ct := models.ChangeType(v)
		if !models.IsValidChangeType(ct) {
			return f, fiber.NewError(fiber.StatusBadRequest, "invalid change_type")
		}
		f.ChangeType = &ct
	}
	return f, nil
}
