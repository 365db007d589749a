package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/p2hgit/p2h_api/internal/models"
)

const paymentColumns = `id, rzp_payment_id, rzp_order_id, amount, currency, status, email, created_at, updated_at`

// PaymentRepository handles data access for payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Upsert records gateway state for a payment. Known values are never
// overwritten with empty ones so partial webhook payloads are safe to replay.
func (r *PaymentRepository) Upsert(ctx context.Context, p *models.Payment) error {
	const q = `
        INSERT INTO payments (rzp_payment_id, rzp_order_id, amount, currency, status, email, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (rzp_payment_id) DO UPDATE SET
            rzp_order_id = COALESCE(EXCLUDED.rzp_order_id, payments.rzp_order_id),
            amount = CASE WHEN EXCLUDED.amount > 0 THEN EXCLUDED.amount ELSE payments.amount END,
            currency = EXCLUDED.currency,
            status = CASE WHEN payments.status = 'captured' AND EXCLUDED.status <> 'refunded'
                          THEN payments.status ELSE EXCLUDED.status END,
            email = COALESCE(EXCLUDED.email, payments.email),
            updated_at = NOW()
        RETURNING id, amount, status, created_at, updated_at`

	return r.db.QueryRowxContext(ctx, q,
		p.RzpPaymentID, p.RzpOrderID, p.Amount, p.Currency, p.Status, p.Email,
	).Scan(&p.ID, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt)
}

// GetByPaymentID returns a payment by its gateway payment ID.
func (r *PaymentRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE rzp_payment_id = $1`
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, q, paymentID); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetLatestByOrderID returns the newest payment for an order. Captured
// payments win over failed attempts on the same order.
func (r *PaymentRepository) GetLatestByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE rzp_order_id = $1
        ORDER BY (status = 'captured') DESC, created_at DESC LIMIT 1`
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, q, orderID); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListCapturedWithoutBooking returns captured payments older than olderThan
// that no booking references.
func (r *PaymentRepository) ListCapturedWithoutBooking(ctx context.Context, olderThan time.Duration) ([]models.Payment, error) {
	const q = `
        SELECT p.id, p.rzp_payment_id, p.rzp_order_id, p.amount, p.currency, p.status, p.email,
               p.created_at, p.updated_at
        FROM payments p
        LEFT JOIN consultations c
               ON c.payment_id = p.rzp_payment_id
               OR (p.rzp_order_id IS NOT NULL AND c.order_id = p.rzp_order_id)
        WHERE p.status = 'captured' AND c.id IS NULL AND p.created_at < $1
        ORDER BY p.created_at ASC
        LIMIT 100`

	var rows []models.Payment
	if err := r.db.SelectContext(ctx, &rows, q, time.Now().Add(-olderThan)); err != nil {
		return nil, err
	}
	return rows, nil
}
