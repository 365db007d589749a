package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/p2hgit/p2h_api/internal/models"
)

const discountColumns = `id, code, description, discount_type, discount_value, min_purchase_amount,
        max_discount_amount, usage_limit, usage_count, start_date, expiry_date,
        applicable_services, is_active, created_at, updated_at`

// DiscountRepository handles data access for discount_codes.
type DiscountRepository struct {
	db *sqlx.DB
}

// NewDiscountRepository creates a new DiscountRepository.
func NewDiscountRepository(db *sqlx.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// GetByCode looks a code up case-insensitively.
func (r *DiscountRepository) GetByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	const q = `SELECT ` + discountColumns + ` FROM discount_codes WHERE code = $1 LIMIT 1`
	var d models.DiscountCode
	if err := r.db.GetContext(ctx, &d, q, strings.ToUpper(strings.TrimSpace(code))); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByID returns a discount code by primary key.
func (r *DiscountRepository) GetByID(ctx context.Context, id int64) (*models.DiscountCode, error) {
	const q = `SELECT ` + discountColumns + ` FROM discount_codes WHERE id = $1`
	var d models.DiscountCode
	if err := r.db.GetContext(ctx, &d, q, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// List returns all codes, newest first.
func (r *DiscountRepository) List(ctx context.Context) ([]models.DiscountCode, error) {
	const q = `SELECT ` + discountColumns + ` FROM discount_codes ORDER BY created_at DESC`
	var rows []models.DiscountCode
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Create inserts a new code. The code is upper-cased before storage.
func (r *DiscountRepository) Create(ctx context.Context, d *models.DiscountCode) error {
	const q = `
        INSERT INTO discount_codes (
            code, description, discount_type, discount_value, min_purchase_amount,
            max_discount_amount, usage_limit, usage_count, start_date, expiry_date,
            applicable_services, is_active, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$9,$10,$11,NOW(),NOW())
        RETURNING id, usage_count, created_at, updated_at`

	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	return r.db.QueryRowxContext(ctx, q,
		d.Code, d.Description, d.DiscountType, d.DiscountValue, d.MinPurchaseAmount,
		d.MaxDiscountAmount, d.UsageLimit, d.StartDate, d.ExpiryDate,
		d.ApplicableServices, d.IsActive,
	).Scan(&d.ID, &d.UsageCount, &d.CreatedAt, &d.UpdatedAt)
}

// Update rewrites the editable fields of a code. usage_count is never touched here.
func (r *DiscountRepository) Update(ctx context.Context, d *models.DiscountCode) error {
	const q = `
        UPDATE discount_codes SET
            code = $2,
            description = $3,
            discount_type = $4,
            discount_value = $5,
            min_purchase_amount = $6,
            max_discount_amount = $7,
            usage_limit = $8,
            start_date = $9,
            expiry_date = $10,
            applicable_services = $11,
            is_active = $12,
            updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at`

	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	return r.db.QueryRowxContext(ctx, q,
		d.ID, d.Code, d.Description, d.DiscountType, d.DiscountValue, d.MinPurchaseAmount,
		d.MaxDiscountAmount, d.UsageLimit, d.StartDate, d.ExpiryDate,
		d.ApplicableServices, d.IsActive,
	).Scan(&d.UpdatedAt)
}

// SetActive toggles a code. Returns sql.ErrNoRows if the ID is unknown.
func (r *DiscountRepository) SetActive(ctx context.Context, id int64, active bool) error {
	const q = `UPDATE discount_codes SET is_active = $2, updated_at = NOW() WHERE id = $1`
	return execAffectingOne(ctx, r.db, q, id, active)
}

// Delete removes a code.
func (r *DiscountRepository) Delete(ctx context.Context, id int64) error {
	return execAffectingOne(ctx, r.db, `DELETE FROM discount_codes WHERE id = $1`, id)
}

// IncrementUsage bumps usage_count by one. Not transactional with
// validation, so concurrent redemptions may overshoot usage_limit.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, id int64) error {
	const q = `UPDATE discount_codes SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1`
	return execAffectingOne(ctx, r.db, q, id)
}

func execAffectingOne(ctx context.Context, db *sqlx.DB, q string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
