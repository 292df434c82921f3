package handlers

import (
	"errors"

	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdminChangeHandler serves the moderation queue. Routes are mounted behind
// middleware.AdminMiddleware.
type AdminChangeHandler struct {
	moderation Moderation
	log        *zap.Logger
}

func NewAdminChangeHandler(moderation Moderation, log *zap.Logger) *AdminChangeHandler {
	return &AdminChangeHandler{moderation: moderation, log: log}
}

func (h *AdminChangeHandler) ListChanges(c *fiber.Ctx) error {
	filter, err := changeFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if v := c.Query("company_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return badRequest(c, "invalid company_id")
		}
		filter.CompanyID = &id
	}

	records, err := h.moderation.List(c.UserContext(), filter)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: records})
}

func (h *AdminChangeHandler) ListUnapplied(c *fiber.Ctx) error {
	limit, _ := pagination(c)
	records, err := h.moderation.ListUnapplied(c.UserContext(), limit)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: records})
}

func (h *AdminChangeHandler) GetChange(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid change id")
	}

	record, err := h.moderation.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: record})
}

func (h *AdminChangeHandler) GetChangeEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid change id")
	}

	if _, err := h.moderation.Get(c.UserContext(), id); err != nil {
		return respondError(c, h.log, err, nil)
	}
	entries, err := h.moderation.GetEvents(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}

func (h *AdminChangeHandler) CreateChange(c *fiber.Ctx) error {
	var req dto.AdminCreateChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	companyID, err := uuid.Parse(req.CompanyID)
	if err != nil {
		return badRequest(c, "invalid company_id")
	}
	var submitterID *uuid.UUID
	if req.SubmitterID != nil {
		id, err := uuid.Parse(*req.SubmitterID)
		if err != nil {
			return badRequest(c, "invalid submitter_id")
		}
		submitterID = &id
	}

	record, err := h.moderation.Submit(c.UserContext(), middleware.GetActor(c), services.SubmitInput{
		CompanyID:   companyID,
		SubmitterID: submitterID,
		ChangeType:  models.ChangeType(req.ChangeType),
		Payload:     req.Payload,
	})
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: record})
}

func (h *AdminChangeHandler) ApproveChange(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid change id")
	}

	decision, err := h.moderation.Approve(c.UserContext(), id, middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err, decisionData(decision))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: decision})
}

func (h *AdminChangeHandler) RejectChange(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid change id")
	}

	var req dto.RejectChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	record, err := h.moderation.Reject(c.UserContext(), id, middleware.GetActor(c), req.Reason)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: record})
}

// ApplyChange retries the apply of an approved record that never completed.
func (h *AdminChangeHandler) ApplyChange(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid change id")
	}

	decision, err := h.moderation.RetryApply(c.UserContext(), id, middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err, decisionData(decision))
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: decision})
}

func (h *AdminChangeHandler) BatchApprove(c *fiber.Ctx) error {
	var req dto.BatchApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.moderation.BatchApprove(c.UserContext(), ids, middleware.GetActor(c))
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.batchItems(c, results)})
}

func (h *AdminChangeHandler) BatchReject(c *fiber.Ctx) error {
	var req dto.BatchRejectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		return badRequest(c, err.Error())
	}

	results, err := h.moderation.BatchReject(c.UserContext(), ids, middleware.GetActor(c), req.Reason)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.batchItems(c, results)})
}

func (h *AdminChangeHandler) batchItems(c *fiber.Ctx, results []services.BatchResult) []dto.BatchItemResponse {
	items := make([]dto.BatchItemResponse, 0, len(results))
	for _, r := range results {
		item := dto.BatchItemResponse{ID: r.ID.String(), OK: r.Err == nil, Status: fiber.StatusOK}
		if r.Decision != nil {
			item.Data = r.Decision
		}
		if r.Err != nil {
			item.Status = statusFor(r.Err)
			item.Error = errorBody(c, r.Err, item.Status, nil).Error
			if item.Status == fiber.StatusInternalServerError {
				h.log.Error("batch item failed", zap.String("change_id", r.ID.String()), zap.Error(r.Err))
			}
		}
		items = append(items, item)
	}
	return items
}

func decisionData(d *services.Decision) any {
	if d == nil {
		return nil
	}
	return d
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, errors.New("ids is required")
	}
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("invalid id " + s)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
