package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/utils"
)

// BookingStatus is the closed set of consultation states.
type BookingStatus string

const (
	BookingScheduled     BookingStatus = "scheduled"
	BookingPending       BookingStatus = "pending"
	BookingConfirmed     BookingStatus = "confirmed"
	BookingPaymentFailed BookingStatus = "payment_failed"
	BookingCancelled     BookingStatus = "cancelled"
	BookingCompleted     BookingStatus = "completed"
	// BookingNeedsDetails holds a captured payment that could not be matched
	// to booking details. An admin completes it by hand.
	BookingNeedsDetails BookingStatus = "payment_received_needs_details"
)

// Booking-level payment status values.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingScheduled:     {BookingPending, BookingConfirmed, BookingPaymentFailed, BookingCancelled},
	BookingPending:       {BookingScheduled, BookingConfirmed, BookingPaymentFailed, BookingCancelled},
	BookingPaymentFailed: {BookingPending, BookingConfirmed, BookingCancelled},
	BookingConfirmed:     {BookingCompleted, BookingCancelled},
	BookingNeedsDetails:  {BookingConfirmed, BookingCancelled},
	BookingCancelled:     nil,
	BookingCompleted:     nil,
}

// ParseBookingStatus validates a raw status string.
func ParseBookingStatus(s string) (BookingStatus, error) {
	st := BookingStatus(s)
	if _, ok := bookingTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", utils.ErrInvalidStatus, s)
	}
	return st, nil
}

// IsPrePayment reports whether the booking is still waiting for money.
func (s BookingStatus) IsPrePayment() bool {
	return s == BookingScheduled || s == BookingPending || s == BookingPaymentFailed
}

// CanTransition reports whether from -> to is legal. Staying in the same
// state is always legal so repeated deliveries converge.
func CanTransition(from, to BookingStatus) bool {
	if from == to {
		_, ok := bookingTransitions[from]
		return ok
	}
	for _, next := range bookingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the booking to the target status or returns
// utils.ErrIllegalTransition. It reports whether the status actually changed.
func (b *Booking) Transition(to BookingStatus) (bool, error) {
	if !CanTransition(b.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", utils.ErrIllegalTransition, b.Status, to)
	}
	changed := b.Status != to
	b.Status = to
	return changed, nil
}

// Booking is a consultation row. ID is a UUID; ReferenceID is what the client sees.
type Booking struct {
	ID               string          `db:"id" json:"id"`
	ReferenceID      string          `db:"reference_id" json:"referenceId"`
	ClientName       string          `db:"client_name" json:"clientName"`
	ClientEmail      string          `db:"client_email" json:"clientEmail"`
	ClientPhone      *string         `db:"client_phone" json:"clientPhone,omitempty"`
	ConsultationType string          `db:"consultation_type" json:"consultationType"`
	Date             *time.Time      `db:"consultation_date" json:"date,omitempty"`
	TimeSlot         string          `db:"time_slot" json:"timeSlot"`
	Status           BookingStatus   `db:"status" json:"status"`
	PaymentID        *string         `db:"payment_id" json:"paymentId,omitempty"`
	OrderID          *string         `db:"order_id" json:"orderId,omitempty"`
	PaymentStatus    *string         `db:"payment_status" json:"paymentStatus,omitempty"`
	EmailSent        bool            `db:"email_sent" json:"emailSent"`
	ServiceCategory  *string         `db:"service_category" json:"serviceCategory,omitempty"`
	Timeframe        *string         `db:"timeframe" json:"timeframe,omitempty"`
	Message          *string         `db:"message" json:"message,omitempty"`
	Services         pq.StringArray  `db:"services" json:"services"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	DiscountCode     *string         `db:"discount_code" json:"discountCode,omitempty"`
	DiscountAmount   decimal.Decimal `db:"discount_amount" json:"discountAmount"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// BookingDetails is the client-submitted booking form carried alongside a
// payment verification or booking intent.
type BookingDetails struct {
	ReferenceID      string          `json:"referenceId"`
	ClientName       string          `json:"clientName"`
	ClientEmail      string          `json:"clientEmail"`
	ClientPhone      string          `json:"clientPhone"`
	ConsultationType string          `json:"consultationType"`
	Date             string          `json:"date"` // YYYY-MM-DD
	TimeSlot         string          `json:"timeSlot"`
	ServiceCategory  string          `json:"serviceCategory"`
	Timeframe        string          `json:"timeframe"`
	Message          string          `json:"message"`
	Services         []string        `json:"services"`
	Amount           decimal.Decimal `json:"amount"`
	DiscountCode     string          `json:"discountCode"`
	DiscountAmount   decimal.Decimal `json:"discountAmount"`
}

// BookingFilter narrows the admin booking list.
type BookingFilter struct {
	Status BookingStatus
	Email  string
	Search string
	Page   int
	Limit  int
}
