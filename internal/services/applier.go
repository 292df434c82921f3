package services

import (
	"context"
	"fmt"

	"github.com/company-marketplace/backend/internal/metrics"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/storage"
	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
	"go.uber.org/zap"
)

// ApplyOutcome describes what an apply actually changed. Detail ends up in
// the audit trail.
type ApplyOutcome struct {
	ChangeID   uuid.UUID         `json:"change_id"`
	ChangeType models.ChangeType `json:"change_type"`
	Detail     map[string]any    `json:"detail,omitempty"`
	Failed     []string          `json:"failed_signed_ids,omitempty"`
}

// Applier writes an approved change into its target company. It trusts that
// the record is approved and not yet applied; the moderation service
// guarantees that.
type Applier struct {
	companies   CompanyStore
	attachments AttachmentStore
	blobs       BlobResolver
	products    ProductStore
	users       UserStore
	log         *zap.Logger
}

func NewApplier(
	companies CompanyStore,
	attachments AttachmentStore,
	blobs BlobResolver,
	products ProductStore,
	users UserStore,
	log *zap.Logger,
) *Applier {
	return &Applier{
		companies:   companies,
		attachments: attachments,
		blobs:       blobs,
		products:    products,
		users:       users,
		log:         log,
	}
}

// Apply returns a *models.ApplyError on any failure.
func (a *Applier) Apply(ctx context.Context, record *models.ChangeRecord) (*ApplyOutcome, error) {
	out := &ApplyOutcome{ChangeID: record.ID, ChangeType: record.ChangeType, Detail: map[string]any{}}

	change, err := record.Decode()
	if err != nil {
		return out, a.fail(record, err)
	}

	switch c := change.(type) {
	case models.CompanyInfoChange:
		err = a.applyCompanyInfo(ctx, record, c, out)
	case models.CategoriesChange:
		err = a.applyCategories(ctx, record, c, out)
	case models.BannerChange:
		err = a.attachSingle(ctx, record, models.AttachmentBanner, c.SignedID, out)
	case models.LogoChange:
		err = a.attachSingle(ctx, record, models.AttachmentLogo, c.SignedID, out)
	case models.MediaChange:
		err = a.appendMedia(ctx, record, c, out)
	case models.ProductChange:
		err = a.applyProduct(ctx, record, c, out)
	case models.CTAConfigChange:
		err = a.applyCTA(ctx, record, c, out)
	case models.AccessRequestChange:
		err = a.grantAccess(ctx, record, out)
	default:
		err = fmt.Errorf("no apply routine for %T", change)
	}
	if err != nil {
		return out, a.fail(record, err)
	}
	return out, nil
}

func (a *Applier) fail(record *models.ChangeRecord, err error) error {
	return &models.ApplyError{ChangeID: record.ID, ChangeType: record.ChangeType, Err: err}
}

func (a *Applier) applyCompanyInfo(ctx context.Context, record *models.ChangeRecord, c models.CompanyInfoChange, out *ApplyOutcome) error {
	before, after, err := a.companies.UpdateAttributes(ctx, record.CompanyID, c.Attributes)
	if err != nil {
		return err
	}

	patch, err := jsondiff.Compare(before.Attributes(), after.Attributes())
	if err != nil {
		a.log.Warn("failed to diff company attributes", zap.String("change_id", record.ID.String()), zap.Error(err))
	} else {
		out.Detail["diff"] = patch
	}

	// previous_values is what the submitter saw; a mismatch means someone
	// else edited the company in between. Last write still wins.
	if len(c.PreviousValues) > 0 {
		current := make(map[string]any, len(c.PreviousValues))
		attrs := before.Attributes()
		for k := range c.PreviousValues {
			current[k] = attrs[k]
		}
		if drift, err := jsondiff.Compare(c.PreviousValues, current); err == nil && len(drift) > 0 {
			a.log.Warn("company changed since submission",
				zap.String("change_id", record.ID.String()),
				zap.String("company_id", record.CompanyID.String()),
				zap.Int("drifted_fields", len(drift)),
			)
			out.Detail["stale_previous_values"] = drift
		}
	}
	return nil
}

func (a *Applier) applyCategories(ctx context.Context, record *models.ChangeRecord, c models.CategoriesChange, out *ApplyOutcome) error {
	var (
		n   int
		err error
	)
	switch c.Action {
	case models.CategoryActionAdd:
		n, err = a.companies.AddCategories(ctx, record.CompanyID, c.CategoryIDs)
		out.Detail["added"] = n
	case models.CategoryActionRemove:
		n, err = a.companies.RemoveCategories(ctx, record.CompanyID, c.CategoryIDs)
		out.Detail["removed"] = n
	default:
		err = fmt.Errorf("unknown category action %q", c.Action)
	}
	return err
}

func (a *Applier) attachSingle(ctx context.Context, record *models.ChangeRecord, slot, signedID string, out *ApplyOutcome) error {
	blob, err := a.blobs.Resolve(ctx, signedID)
	if err != nil {
		metrics.ObserveBlobFailure(string(record.ChangeType))
		return &models.BlobResolutionError{SignedID: signedID, Err: err}
	}
	if err := a.attachments.Attach(ctx, record.CompanyID, slot, blob); err != nil {
		return err
	}
	out.Detail["blob_id"] = blob.ID.String()
	return nil
}

// appendMedia attaches each blob independently. A signed id that does not
// resolve to a blob is skipped and reported in Failed; the record still
// counts as applied, even when nothing was attached. Storage outages and
// failed writes abort the apply.
func (a *Applier) appendMedia(ctx context.Context, record *models.ChangeRecord, c models.MediaChange, out *ApplyOutcome) error {
	attached := []string{}
	for _, signedID := range c.SignedIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		blob, err := a.blobs.Resolve(ctx, signedID)
		if err != nil {
			metrics.ObserveBlobFailure(string(record.ChangeType))
			if !storage.IsNotFound(err) {
				return &models.BlobResolutionError{SignedID: signedID, Err: err}
			}
			out.Failed = append(out.Failed, signedID)
			a.log.Warn("skipping media blob",
				zap.String("change_id", record.ID.String()),
				zap.String("signed_id", signedID),
				zap.Error(err),
			)
			continue
		}
		if err := a.attachments.Append(ctx, record.CompanyID, models.AttachmentMedia, blob); err != nil {
			return fmt.Errorf("append blob %s: %w", blob.ID, err)
		}
		attached = append(attached, blob.ID.String())
	}

	out.Detail["attached"] = attached
	if len(out.Failed) > 0 {
		out.Detail["failed"] = out.Failed
	}
	if len(attached) == 0 {
		a.log.Warn("media change attached nothing",
			zap.String("change_id", record.ID.String()),
			zap.Strings("failed_signed_ids", out.Failed),
		)
	}
	return nil
}

func (a *Applier) applyProduct(ctx context.Context, record *models.ChangeRecord, c models.ProductChange, out *ApplyOutcome) error {
	if c.ProductID == nil {
		p := &models.Product{CompanyID: record.CompanyID}
		if err := p.ApplyAttributes(c.Attributes); err != nil {
			return err
		}
		if err := a.products.Create(ctx, p); err != nil {
			return err
		}
		out.Detail["product_id"] = p.ID.String()
		out.Detail["created"] = true
		return nil
	}

	p, err := a.products.GetByID(ctx, *c.ProductID)
	if err != nil {
		return err
	}
	if p.CompanyID != record.CompanyID {
		return fmt.Errorf("product %s does not belong to company %s", p.ID, record.CompanyID)
	}
	if err := p.ApplyAttributes(c.Attributes); err != nil {
		return err
	}
	if err := a.products.Update(ctx, p); err != nil {
		return err
	}
	out.Detail["product_id"] = p.ID.String()
	return nil
}

func (a *Applier) applyCTA(ctx context.Context, record *models.ChangeRecord, c models.CTAConfigChange, out *ApplyOutcome) error {
	cta, err := a.companies.UpdateCTA(ctx, record.CompanyID, c)
	if err != nil {
		return err
	}
	out.Detail["cta"] = cta
	return nil
}

func (a *Applier) grantAccess(ctx context.Context, record *models.ChangeRecord, out *ApplyOutcome) error {
	if record.SubmitterID == nil {
		out.Detail["granted"] = false
		return nil
	}
	if err := a.users.SetCompany(ctx, *record.SubmitterID, record.CompanyID); err != nil {
		return err
	}
	out.Detail["granted"] = true
	return nil
}
