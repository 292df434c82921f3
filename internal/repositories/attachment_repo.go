package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/company-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttachmentRepo struct {
	pool *pgxpool.Pool
}

func NewAttachmentRepo(pool *pgxpool.Pool) *AttachmentRepo {
	return &AttachmentRepo{pool: pool}
}

func (r *AttachmentRepo) GetBlobByKey(ctx context.Context, key string) (*models.Blob, error) {
	var b models.Blob
	err := r.pool.QueryRow(ctx, `
		SELECT id, key, filename, content_type, byte_size, checksum, created_at
		FROM blobs WHERE key = $1
	`, key).Scan(&b.ID, &b.Key, &b.Filename, &b.ContentType, &b.ByteSize, &b.Checksum, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("blob %q: %w", key, models.ErrBlobNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Attach fills a single-asset slot, replacing whatever was attached before.
func (r *AttachmentRepo) Attach(ctx context.Context, companyID uuid.UUID, slot string, blob *models.Blob) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM company_attachments WHERE company_id = $1 AND name = $2`, companyID, slot); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO company_attachments (company_id, name, blob_id) VALUES ($1, $2, $3)
	`, companyID, slot, blob.ID); err != nil {
		return err
	}
	if err := bumpCompany(ctx, tx, companyID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Append adds a blob to a multi-asset collection.
func (r *AttachmentRepo) Append(ctx context.Context, companyID uuid.UUID, collection string, blob *models.Blob) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO company_attachments (company_id, name, blob_id) VALUES ($1, $2, $3)
	`, companyID, collection, blob.ID); err != nil {
		return err
	}
	if err := bumpCompany(ctx, tx, companyID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AttachmentRepo) ListByCompany(ctx context.Context, companyID uuid.UUID, name string) ([]models.Attachment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, company_id, name, blob_id, created_at
		FROM company_attachments WHERE company_id = $1 AND name = $2
		ORDER BY created_at, id
	`, companyID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Name, &a.BlobID, &a.CreatedAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}
