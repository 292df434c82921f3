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

type ProductRepo struct {
	pool *pgxpool.Pool
}

func NewProductRepo(pool *pgxpool.Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, name, description, website, created_at, updated_at
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.Website, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) Create(ctx context.Context, p *models.Product) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO products (company_id, name, description, website)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, p.CompanyID, p.Name, p.Description, p.Website).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *ProductRepo) Update(ctx context.Context, p *models.Product) error {
	return r.pool.QueryRow(ctx, `
		UPDATE products SET name = $2, description = $3, website = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, p.ID, p.Name, p.Description, p.Website).Scan(&p.UpdatedAt)
}
