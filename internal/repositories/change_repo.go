package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/company-marketplace/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const changeColumns = `id, seq, company_id, submitter_id, change_type, payload, status, rejection_reason,
	approver_id, created_at, approved_at, rejected_at, applied_at, apply_claimed_until`

type ChangeRepo struct {
	pool *pgxpool.Pool
}

func NewChangeRepo(pool *pgxpool.Pool) *ChangeRepo {
	return &ChangeRepo{pool: pool}
}

type ChangeFilter struct {
	CompanyID   *uuid.UUID
	SubmitterID *uuid.UUID
	Status      *string
	ChangeType  *models.ChangeType
	Unapplied   bool // approved but applied_at not set
	Limit       int
	Offset      int
}

func (r *ChangeRepo) Create(ctx context.Context, c *models.ChangeRecord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO change_records (company_id, submitter_id, change_type, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, seq, created_at
	`, c.CompanyID, c.SubmitterID, c.ChangeType, c.Payload, c.Status,
	).Scan(&c.ID, &c.Seq, &c.CreatedAt)
}

func (r *ChangeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+changeColumns+` FROM change_records WHERE id = $1`, id)
	c, err := scanChange(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("change %s: %w", id, models.ErrNotFound)
	}
	return c, err
}

// GetByIDs returns the records in submission order. Missing ids are skipped.
func (r *ChangeRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ChangeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+changeColumns+` FROM change_records
		WHERE id = ANY($1)
		ORDER BY seq
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChanges(rows)
}

func (r *ChangeRepo) List(ctx context.Context, f ChangeFilter) ([]models.ChangeRecord, error) {
	query := `SELECT ` + changeColumns + ` FROM change_records`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.CompanyID != nil {
		where = append(where, fmt.Sprintf("company_id = $%d", argIdx))
		args = append(args, *f.CompanyID)
		argIdx++
	}
	if f.SubmitterID != nil {
		where = append(where, fmt.Sprintf("submitter_id = $%d", argIdx))
		args = append(args, *f.SubmitterID)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}
	if f.ChangeType != nil {
		where = append(where, fmt.Sprintf("change_type = $%d", argIdx))
		args = append(args, *f.ChangeType)
		argIdx++
	}
	if f.Unapplied {
		where = append(where, "status = 'approved' AND applied_at IS NULL")
	}

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY seq LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChanges(rows)
}

// MarkApproved flips a pending record. It reports false when the record was
// no longer pending, so concurrent approvals cannot both succeed.
func (r *ChangeRepo) MarkApproved(ctx context.Context, id, approverID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE change_records SET status = 'approved', approver_id = $2, approved_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, approverID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ChangeRepo) MarkRejected(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE change_records SET status = 'rejected', rejection_reason = $2, rejected_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, reason, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimApply reserves an approved, unapplied record for one applier until
// the given time. It reports false while another claim is still live, so two
// appliers never mutate the company for the same record.
func (r *ChangeRepo) ClaimApply(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE change_records SET apply_claimed_until = $3
		WHERE id = $1 AND status = 'approved' AND applied_at IS NULL
			AND (apply_claimed_until IS NULL OR apply_claimed_until <= $2)
	`, id, now, until)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseApply drops the claim on a record that is still unapplied.
func (r *ChangeRepo) ReleaseApply(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE change_records SET apply_claimed_until = NULL
		WHERE id = $1 AND applied_at IS NULL
	`, id)
	return err
}

func (r *ChangeRepo) MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE change_records SET applied_at = $2, apply_claimed_until = NULL
		WHERE id = $1 AND status = 'approved' AND applied_at IS NULL
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanChange(row pgx.Row) (*models.ChangeRecord, error) {
	var c models.ChangeRecord
	err := row.Scan(&c.ID, &c.Seq, &c.CompanyID, &c.SubmitterID, &c.ChangeType, &c.Payload, &c.Status, &c.RejectionReason,
		&c.ApproverID, &c.CreatedAt, &c.ApprovedAt, &c.RejectedAt, &c.AppliedAt, &c.ApplyClaimedUntil)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectChanges(rows pgx.Rows) ([]models.ChangeRecord, error) {
	var changes []models.ChangeRecord
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, *c)
	}
	return changes, rows.Err()
}
