package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/p2hgit/p2h_api/internal/models"
)

const priceColumns = `id, service_id, name, price, currency, type, is_active, created_at, updated_at`

// PriceRepository handles data access for service_prices.
type PriceRepository struct {
	db *sqlx.DB
}

// NewPriceRepository creates a new PriceRepository.
func NewPriceRepository(db *sqlx.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// GetActiveByIDs returns active rows for the given backend IDs. Inactive or
// unknown IDs are simply absent.
func (r *PriceRepository) GetActiveByIDs(ctx context.Context, serviceIDs []string) ([]models.PriceRecord, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	const q = `SELECT ` + priceColumns + ` FROM service_prices
        WHERE is_active = TRUE AND service_id = ANY($1)`

	stmt, err := r.db.PreparexContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var rows []models.PriceRecord
	if err := stmt.SelectContext(ctx, &rows, pq.Array(serviceIDs)); err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	return rows, nil
}

// List returns all price rows for the admin console.
func (r *PriceRepository) List(ctx context.Context) ([]models.PriceRecord, error) {
	const q = `SELECT ` + priceColumns + ` FROM service_prices ORDER BY type, service_id`
	var rows []models.PriceRecord
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert creates or replaces the row keyed by service_id.
func (r *PriceRepository) Upsert(ctx context.Context, p *models.PriceRecord) error {
	const q = `
        INSERT INTO service_prices (service_id, name, price, currency, type, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (service_id) DO UPDATE SET
            name = EXCLUDED.name,
            price = EXCLUDED.price,
            currency = EXCLUDED.currency,
            type = EXCLUDED.type,
            is_active = EXCLUDED.is_active,
            updated_at = NOW()
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowxContext(ctx, q,
		p.ServiceID, p.Name, p.Price, p.Currency, p.Type, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// SetActive toggles a price row. Returns sql.ErrNoRows if the ID is unknown.
func (r *PriceRepository) SetActive(ctx context.Context, serviceID string, active bool) error {
	const q = `UPDATE service_prices SET is_active = $2, updated_at = NOW() WHERE service_id = $1`
	return execAffectingOne(ctx, r.db, q, serviceID, active)
}
