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

const companyColumns = `c.id, c.name, c.description, c.website, c.email, c.phone, c.address, c.city, c.country,
	c.founded_year, c.employee_count, c.cta_label, c.cta_url, c.cta_style, c.cta_enabled,
	c.lock_version, c.created_at, c.updated_at,
	COALESCE((SELECT array_agg(cc.category_id ORDER BY cc.category_id) FROM company_categories cc WHERE cc.company_id = c.id), '{}')`

// CompanyRepo writes are transactional per company row. Every write bumps
// lock_version; concurrent writers are not blocked (last write wins).
type CompanyRepo struct {
	pool *pgxpool.Pool
}

func NewCompanyRepo(pool *pgxpool.Pool) *CompanyRepo {
	return &CompanyRepo{pool: pool}
}

func (r *CompanyRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, models.ErrNotFound)
	}
	return c, err
}

// UpdateAttributes loads the company, overwrites attrs and saves it.
// It returns the company as it was before and after the write.
func (r *CompanyRepo) UpdateAttributes(ctx context.Context, id uuid.UUID, attrs map[string]any) (*models.Company, *models.Company, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	before, err := r.lockCompany(ctx, tx, id)
	if err != nil {
		return nil, nil, err
	}
	after := *before
	if err := after.ApplyAttributes(attrs); err != nil {
		return nil, nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE companies SET name = $2, description = $3, website = $4, email = $5, phone = $6,
			address = $7, city = $8, country = $9, founded_year = $10, employee_count = $11,
			lock_version = lock_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING lock_version, updated_at
	`, id, after.Name, after.Description, after.Website, after.Email, after.Phone,
		after.Address, after.City, after.Country, after.FoundedYear, after.EmployeeCount,
	).Scan(&after.LockVersion, &after.UpdatedAt)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return before, &after, nil
}

// AddCategories is a set union: ids already present are skipped.
func (r *CompanyRepo) AddCategories(ctx context.Context, id uuid.UUID, categoryIDs []int64) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO company_categories (company_id, category_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (company_id, category_id) DO NOTHING
	`, id, categoryIDs)
	if err != nil {
		return 0, err
	}
	if err := bumpCompany(ctx, tx, id); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), tx.Commit(ctx)
}

// RemoveCategories is a set difference: absent ids are ignored.
func (r *CompanyRepo) RemoveCategories(ctx context.Context, id uuid.UUID, categoryIDs []int64) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		DELETE FROM company_categories WHERE company_id = $1 AND category_id = ANY($2)
	`, id, categoryIDs)
	if err != nil {
		return 0, err
	}
	if err := bumpCompany(ctx, tx, id); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), tx.Commit(ctx)
}

func (r *CompanyRepo) UpdateCTA(ctx context.Context, id uuid.UUID, change models.CTAConfigChange) (*models.CTAConfig, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	company, err := r.lockCompany(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	cta := company.CTA
	cta.Merge(change)

	_, err = tx.Exec(ctx, `
		UPDATE companies SET cta_label = $2, cta_url = $3, cta_style = $4, cta_enabled = $5,
			lock_version = lock_version + 1, updated_at = now()
		WHERE id = $1
	`, id, cta.Label, cta.URL, cta.Style, cta.Enabled)
	if err != nil {
		return nil, err
	}
	return &cta, tx.Commit(ctx)
}

func (r *CompanyRepo) lockCompany(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Company, error) {
	c, err := scanCompany(tx.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = $1 FOR UPDATE OF c`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, models.ErrNotFound)
	}
	return c, err
}

func bumpCompany(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `UPDATE companies SET lock_version = lock_version + 1, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("company %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var c models.Company
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Website, &c.Email, &c.Phone, &c.Address, &c.City, &c.Country,
		&c.FoundedYear, &c.EmployeeCount, &c.CTA.Label, &c.CTA.URL, &c.CTA.Style, &c.CTA.Enabled,
		&c.LockVersion, &c.CreatedAt, &c.UpdatedAt, &c.CategoryIDs)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
