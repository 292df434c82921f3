package handlers

import (
	"context"

	"github.com/company-marketplace/backend/internal/http/dto"
	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CompanyReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
}

type AttachmentReader interface {
	ListByCompany(ctx context.Context, companyID uuid.UUID, name string) ([]models.Attachment, error)
}

// CompanyHandler shows a company as it is now, after applied changes.
type CompanyHandler struct {
	companies   CompanyReader
	attachments AttachmentReader
	log         *zap.Logger
}

func NewCompanyHandler(companies CompanyReader, attachments AttachmentReader, log *zap.Logger) *CompanyHandler {
	return &CompanyHandler{companies: companies, attachments: attachments, log: log}
}

type companyView struct {
	*models.Company
	Attachments map[string][]models.Attachment `json:"attachments"`
}

func (h *CompanyHandler) GetCompany(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid company id")
	}

	actor := middleware.GetActor(c)
	if !rbac.CanActOnCompany(actor.Role, middleware.GetCompanyID(c), id, "") {
		return forbidden(c)
	}

	company, err := h.companies.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err, nil)
	}

	view := companyView{Company: company, Attachments: map[string][]models.Attachment{}}
	for _, slot := range []string{models.AttachmentBanner, models.AttachmentLogo, models.AttachmentMedia} {
		list, err := h.attachments.ListByCompany(c.UserContext(), id, slot)
		if err != nil {
			return respondError(c, h.log, err, nil)
		}
		view.Attachments[slot] = list
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}
