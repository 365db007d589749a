package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/p2hgit/p2h_api/internal/models"
)

const bookingColumns = `id, reference_id, client_name, client_email, client_phone, consultation_type,
        consultation_date, time_slot, status, payment_id, order_id, payment_status, email_sent,
        service_category, timeframe, message, services, amount, discount_code, discount_amount,
        created_at, updated_at`

// ErrDuplicatePaymentID is returned when a write would attach a payment ID
// that already belongs to another booking.
var ErrDuplicatePaymentID = errors.New("payment id already attached to a booking")

// BookingRepository handles data access for consultations.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Insert creates a booking unless one with the same reference_id exists.
// It reports false, without error, when the reference was already taken;
// the caller re-reads the existing row and updates it instead.
func (r *BookingRepository) Insert(ctx context.Context, b *models.Booking) (bool, error) {
	const q = `
        INSERT INTO consultations (
            reference_id, client_name, client_email, client_phone, consultation_type,
            consultation_date, time_slot, status, payment_id, order_id, payment_status,
            email_sent, service_category, timeframe, message, services, amount,
            discount_code, discount_amount, created_at, updated_at
        ) VALUES (
            $1,$2,$3,$4,$5,
            $6,$7,$8,$9,$10,$11,
            $12,$13,$14,$15,$16,$17,
            $18,$19,NOW(),NOW()
        )
        ON CONFLICT (reference_id) DO NOTHING
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		b.ReferenceID, b.ClientName, b.ClientEmail, b.ClientPhone, b.ConsultationType,
		b.Date, b.TimeSlot, b.Status, b.PaymentID, b.OrderID, b.PaymentStatus,
		b.EmailSent, b.ServiceCategory, b.Timeframe, b.Message, b.Services, b.Amount,
		b.DiscountCode, b.DiscountAmount,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapUniqueViolation(err)
	}
	return true, nil
}

// Update writes every mutable column of a booking identified by id.
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking) error {
	const q = `
        UPDATE consultations SET
            client_name = $2,
            client_email = $3,
            client_phone = $4,
            consultation_type = $5,
            consultation_date = $6,
            time_slot = $7,
            status = $8,
            payment_id = $9,
            order_id = $10,
            payment_status = $11,
            service_category = $12,
            timeframe = $13,
            message = $14,
            services = $15,
            amount = $16,
            discount_code = $17,
            discount_amount = $18,
            updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at`

	err := r.db.QueryRowxContext(ctx, q,
		b.ID, b.ClientName, b.ClientEmail, b.ClientPhone, b.ConsultationType,
		b.Date, b.TimeSlot, b.Status, b.PaymentID, b.OrderID, b.PaymentStatus,
		b.ServiceCategory, b.Timeframe, b.Message, b.Services, b.Amount,
		b.DiscountCode, b.DiscountAmount,
	).Scan(&b.UpdatedAt)
	return mapUniqueViolation(err)
}

// UpdateStatus sets status only.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error {
	const q = `UPDATE consultations SET status = $2, updated_at = NOW() WHERE id = $1`
	return execAffectingOne(ctx, r.db, q, id, status)
}

// SetOrderID attaches the gateway order created for a pending booking.
func (r *BookingRepository) SetOrderID(ctx context.Context, id, orderID string) error {
	const q = `UPDATE consultations SET order_id = $2, updated_at = NOW() WHERE id = $1`
	return execAffectingOne(ctx, r.db, q, id, orderID)
}

// MarkEmailSent records a delivered confirmation email.
func (r *BookingRepository) MarkEmailSent(ctx context.Context, id string) error {
	const q = `UPDATE consultations SET email_sent = TRUE, updated_at = NOW() WHERE id = $1`
	return execAffectingOne(ctx, r.db, q, id)
}

// GetByID returns a booking by its UUID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByReferenceID returns a booking by its client-visible reference.
func (r *BookingRepository) GetByReferenceID(ctx context.Context, referenceID string) (*models.Booking, error) {
	return r.getOne(ctx, `reference_id = $1`, referenceID)
}

// GetByPaymentID returns the booking holding a gateway payment ID.
func (r *BookingRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error) {
	return r.getOne(ctx, `payment_id = $1`, paymentID)
}

// GetByOrderID returns the most recent booking holding a gateway order ID.
func (r *BookingRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Booking, error) {
	return r.getOne(ctx, `order_id = $1`, orderID)
}

func (r *BookingRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM consultations WHERE ` + where + ` ORDER BY created_at DESC LIMIT 1`

	stmt, err := r.db.PreparexContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var b models.Booking
	if err := stmt.GetContext(ctx, &b, arg); err != nil {
		return nil, err
	}
	return &b, nil
}

// List returns a page of bookings and the total matching count.
func (r *BookingRepository) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Email != "" {
		args = append(args, strings.ToLower(f.Email))
		conds = append(conds, fmt.Sprintf("LOWER(client_email) = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(reference_id ILIKE $%d OR client_name ILIKE $%d OR payment_id ILIKE $%d)", n, n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM consultations`+where, args...); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	q := fmt.Sprintf(`SELECT %s FROM consultations%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)-1, len(args))

	var rows []models.Booking
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Delete hard-deletes a booking. Admin only.
func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	return execAffectingOne(ctx, r.db, `DELETE FROM consultations WHERE id = $1`, id)
}

// GetStalePending returns pre-payment bookings with a gateway order that
// have waited longer than staleAfter but are younger than maxAge.
func (r *BookingRepository) GetStalePending(ctx context.Context, staleAfter, maxAge time.Duration) ([]models.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM consultations
        WHERE status IN ('scheduled', 'pending', 'payment_failed')
          AND order_id IS NOT NULL
          AND created_at < $1
          AND created_at > $2
        ORDER BY created_at ASC
        LIMIT 100`

	now := time.Now()
	var rows []models.Booking
	if err := r.db.SelectContext(ctx, &rows, q, now.Add(-staleAfter), now.Add(-maxAge)); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetUnsentConfirmations returns confirmed bookings whose email never went out.
func (r *BookingRepository) GetUnsentConfirmations(ctx context.Context, limit int) ([]models.Booking, error) {
	const q = `SELECT ` + bookingColumns + ` FROM consultations
        WHERE status = 'confirmed' AND email_sent = FALSE AND client_email <> ''
        ORDER BY updated_at ASC
        LIMIT $1`

	var rows []models.Booking
	if err := r.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

// mapUniqueViolation turns a payment_id unique violation into ErrDuplicatePaymentID.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" &&
		strings.Contains(pqErr.Constraint, "payment_id") {
		return fmt.Errorf("%w: %s", ErrDuplicatePaymentID, pqErr.Message)
	}
	return err
}
