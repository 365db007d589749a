package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentState string

const (
	PaymentCreated    PaymentState = "created"
	PaymentAuthorized PaymentState = "authorized"
	PaymentCaptured   PaymentState = "captured"
	PaymentFailed     PaymentState = "failed"
	PaymentRefunded   PaymentState = "refunded"
)

// Payment mirrors gateway state for a single Razorpay payment. Amount is in rupees.
type Payment struct {
	ID           int64           `db:"id" json:"id"`
	RzpPaymentID string          `db:"rzp_payment_id" json:"paymentId"`
	RzpOrderID   *string         `db:"rzp_order_id" json:"orderId,omitempty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Currency     string          `db:"currency" json:"currency"`
	Status       PaymentState    `db:"status" json:"status"`
	Email        *string         `db:"email" json:"email,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}
