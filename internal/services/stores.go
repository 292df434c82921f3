package services

import (
	"context"
	"time"

	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
)

// ChangeStore persists change records. Mark* and ClaimApply report false
// when the conditional update matched no row.
type ChangeStore interface {
	Create(ctx context.Context, c *models.ChangeRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ChangeRecord, error)
	List(ctx context.Context, f repositories.ChangeFilter) ([]models.ChangeRecord, error)
	MarkApproved(ctx context.Context, id, approverID uuid.UUID, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	ClaimApply(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error)
	ReleaseApply(ctx context.Context, id uuid.UUID) error
	MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type CompanyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	UpdateAttributes(ctx context.Context, id uuid.UUID, attrs map[string]any) (before, after *models.Company, err error)
	AddCategories(ctx context.Context, id uuid.UUID, categoryIDs []int64) (int, error)
	RemoveCategories(ctx context.Context, id uuid.UUID, categoryIDs []int64) (int, error)
	UpdateCTA(ctx context.Context, id uuid.UUID, change models.CTAConfigChange) (*models.CTAConfig, error)
}

type AttachmentStore interface {
	Attach(ctx context.Context, companyID uuid.UUID, slot string, blob *models.Blob) error
	Append(ctx context.Context, companyID uuid.UUID, collection string, blob *models.Blob) error
}

type BlobResolver interface {
	Resolve(ctx context.Context, signedID string) (*models.Blob, error)
}

type ProductStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
}

type UserStore interface {
	SetCompany(ctx context.Context, userID, companyID uuid.UUID) error
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit int) ([]models.AuditLog, error)
}

var (
	_ ChangeStore     = (*repositories.ChangeRepo)(nil)
	_ CompanyStore    = (*repositories.CompanyRepo)(nil)
	_ AttachmentStore = (*repositories.AttachmentRepo)(nil)
	_ ProductStore    = (*repositories.ProductRepo)(nil)
	_ UserStore       = (*repositories.UserRepo)(nil)
	_ AuditStore      = (*repositories.AuditRepo)(nil)
)
