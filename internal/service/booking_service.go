package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/sse"
	"github.com/p2hgit/p2h_api/internal/utils"
	"github.com/p2hgit/p2h_api/pkg/razorpay"
)

// BookingStore is the persistence the booking and reconciliation services need.
type BookingStore interface {
	Insert(ctx context.Context, b *models.Booking) (bool, error)
	Update(ctx context.Context, b *models.Booking) error
	UpdateStatus(ctx context.Context, id string, status models.BookingStatus) error
	SetOrderID(ctx context.Context, id, orderID string) error
	MarkEmailSent(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByReferenceID(ctx context.Context, referenceID string) (*models.Booking, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Booking, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Booking, error)
	List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error)
	Delete(ctx context.Context, id string) error
	GetStalePending(ctx context.Context, staleAfter, maxAge time.Duration) ([]models.Booking, error)
	GetUnsentConfirmations(ctx context.Context, limit int) ([]models.Booking, error)
}

// PaymentGateway is the subset of the Razorpay client used by services.
type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*razorpay.Payment, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]razorpay.Payment, error)
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

// QuoteResolver prices a selection.
type QuoteResolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (*Quote, error)
}

// BookingIntent is what the checkout page needs to open the Razorpay widget.
type BookingIntent struct {
	Booking  *models.Booking `json:"booking"`
	Quote    *Quote          `json:"quote"`
	OrderID  string          `json:"orderId"`
	Amount   int64           `json:"amount"` // paise
	Currency string          `json:"currency"`
	KeyID    string          `json:"keyId"`
}

// BookingService creates booking intents and serves booking reads and
// admin status changes.
type BookingService struct {
	repo     BookingStore
	pricing  QuoteResolver
	gateway  PaymentGateway
	notifier sse.BookingNotifier
}

// NewBookingService constructs a BookingService.
func NewBookingService(
	repo BookingStore,
	pricing QuoteResolver,
	gateway PaymentGateway,
	notifier sse.BookingNotifier,
) *BookingService {
	if notifier == nil {
		notifier = &sse.NopNotifier{}
	}
	return &BookingService{
		repo:     repo,
		pricing:  pricing,
		gateway:  gateway,
		notifier: notifier,
	}
}

// CreateIntent prices the selection server-side, stores a pending booking
// and opens a gateway order for the payable amount. A booking whose price
// cannot be resolved is refused.
func (s *BookingService) CreateIntent(ctx context.Context, details models.BookingDetails) (*BookingIntent, error) {
	quote, err := s.pricing.Resolve(ctx, ResolveRequest{
		Services:        details.Services,
		ServiceCategory: details.ServiceCategory,
		DiscountCode:    details.DiscountCode,
		Email:           details.ClientEmail,
	})
	if err != nil {
		return nil, err
	}
	if quote.PriceUnavailable || !quote.Payable.IsPositive() {
		return nil, utils.ErrPricingUnavailable
	}
	if strings.TrimSpace(details.DiscountCode) != "" && quote.Discount == nil {
		return nil, fmt.Errorf("%w: %s", utils.ErrDiscountInvalid, quote.DiscountMessage)
	}

	b, err := bookingFromDetails(details)
	if err != nil {
		return nil, err
	}
	if b.ReferenceID == "" {
		if b.ReferenceID, err = utils.GenerateReferenceID(); err != nil {
			return nil, fmt.Errorf("generate reference: %w", err)
		}
	}
	pending := models.PaymentStatusPending
	b.Status = models.BookingPending
	b.PaymentStatus = &pending
	b.Amount = quote.Payable
	b.DiscountCode = nil
	b.DiscountAmount = quote.FinalPrice.Sub(quote.Payable)
	if quote.Discount != nil {
		code := quote.Discount.Code
		b.DiscountCode = &code
	}
	if err := s.storePending(ctx, b); err != nil {
		return nil, err
	}

	currency := quote.Currency
	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   razorpay.ToPaise(b.Amount),
		Currency: currency,
		Receipt:  b.ReferenceID,
		Notes: razorpay.Notes{
			"reference_id": b.ReferenceID,
			"booking_id":   b.ID,
			"email":        b.ClientEmail,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to create gateway order")
		return nil, fmt.Errorf("%w: %v", utils.ErrGatewayUnavailable, err)
	}

	if err := s.repo.SetOrderID(ctx, b.ID, order.ID); err != nil {
		return nil, fmt.Errorf("%w: set order id: %v", utils.ErrPersistence, err)
	}
	b.OrderID = &order.ID

	log.Info().
		Str("reference_id", b.ReferenceID).
		Str("order_id", order.ID).
		Str("amount", b.Amount.String()).
		Msg("Booking intent created")
	s.notifier.NotifyBookingCreated(b)

	return &BookingIntent{
		Booking:  b,
		Quote:    quote,
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// storePending inserts b, or refreshes an existing pre-payment booking with
// the same reference so a retried checkout reuses its row. A reference held
// by a different client email is never reused; b gets a fresh one.
func (s *BookingService) storePending(ctx context.Context, b *models.Booking) error {
	inserted, err := s.repo.Insert(ctx, b)
	if err != nil {
		return fmt.Errorf("%w: insert booking: %v", utils.ErrPersistence, err)
	}
	if inserted {
		return nil
	}

	existing, err := s.repo.GetByReferenceID(ctx, b.ReferenceID)
	if err != nil {
		return fmt.Errorf("%w: reload booking: %v", utils.ErrPersistence, err)
	}
	if !strings.EqualFold(existing.ClientEmail, b.ClientEmail) {
		log.Warn().Str("reference_id", b.ReferenceID).Msg("Reference belongs to another client, issuing a new one")
		if b.ReferenceID, err = utils.GenerateReferenceID(); err != nil {
			return fmt.Errorf("generate reference: %w", err)
		}
		if inserted, err = s.repo.Insert(ctx, b); err != nil {
			return fmt.Errorf("%w: insert booking: %v", utils.ErrPersistence, err)
		}
		if !inserted {
			return fmt.Errorf("%w: reference %s already taken", utils.ErrPersistence, b.ReferenceID)
		}
		return nil
	}
	if !existing.Status.IsPrePayment() {
		return fmt.Errorf("%w: booking %s is %s", utils.ErrIllegalTransition, existing.ReferenceID, existing.Status)
	}
	if _, err := existing.Transition(models.BookingPending); err != nil {
		return err
	}
	b.ID = existing.ID
	b.CreatedAt = existing.CreatedAt
	b.EmailSent = existing.EmailSent
	if err := s.repo.Update(ctx, b); err != nil {
		return fmt.Errorf("%w: update booking: %v", utils.ErrPersistence, err)
	}
	return nil
}

// GetByReference returns the booking behind a client reference.
func (s *BookingService) GetByReference(ctx context.Context, referenceID string) (*models.Booking, error) {
	b, err := s.repo.GetByReferenceID(ctx, referenceID)
	return b, mapBookingErr(err)
}

// List returns a page of bookings for the admin console.
func (s *BookingService) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error) {
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", utils.ErrPersistence, err)
	}
	return rows, total, nil
}

// Get returns a booking by its ID.
func (s *BookingService) Get(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	return b, mapBookingErr(err)
}

// ChangeStatus moves a booking through the state machine on behalf of an admin.
func (s *BookingService) ChangeStatus(ctx context.Context, id, status string) (*models.Booking, error) {
	to, err := models.ParseBookingStatus(status)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapBookingErr(err)
	}
	changed, err := b.Transition(to)
	if err != nil {
		return nil, err
	}
	if !changed {
		return b, nil
	}
	if err := s.repo.UpdateStatus(ctx, b.ID, b.Status); err != nil {
		return nil, mapBookingErr(err)
	}
	log.Info().Str("reference_id", b.ReferenceID).Str("status", string(b.Status)).Msg("Booking status changed by admin")
	s.notifier.NotifyBookingStatusChanged(b)
	return b, nil
}

// Delete removes a booking.
func (s *BookingService) Delete(ctx context.Context, id string) error {
	return mapBookingErr(s.repo.Delete(ctx, id))
}

func mapBookingErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return utils.ErrBookingNotFound
	default:
		return fmt.Errorf("%w: %v", utils.ErrPersistence, err)
	}
}

// bookingFromDetails builds an unsaved booking from the client form.
func bookingFromDetails(d models.BookingDetails) (*models.Booking, error) {
	b := &models.Booking{ReferenceID: strings.TrimSpace(d.ReferenceID)}
	if err := fillFromDetails(b, d); err != nil {
		return nil, err
	}
	return b, nil
}

// fillFromDetails copies client-supplied fields onto b. Amount and discount
// are never taken from the form; they come from a server-side quote or the
// gateway.
func fillFromDetails(b *models.Booking, d models.BookingDetails) error {
	if d.Date != "" {
		date, err := time.ParseInLocation("2006-01-02", d.Date, utils.IST)
		if err != nil {
			return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", utils.ErrValidation, d.Date)
		}
		b.Date = &date
	}
	if name := strings.TrimSpace(d.ClientName); name != "" {
		b.ClientName = name
	}
	if email := strings.TrimSpace(d.ClientEmail); email != "" {
		b.ClientEmail = strings.ToLower(email)
	}
	if p := optional(d.ClientPhone); p != nil {
		b.ClientPhone = p
	}
	if d.TimeSlot != "" {
		b.TimeSlot = d.TimeSlot
	}
	if services := catalog.Dedup(d.Services); len(services) > 0 {
		b.Services = services
	}
	if ct := strings.TrimSpace(d.ConsultationType); ct != "" {
		b.ConsultationType = ct
	} else if b.ConsultationType == "" && len(b.Services) > 0 {
		b.ConsultationType = strings.Join(b.Services, ",")
	}
	if v := optional(d.ServiceCategory); v != nil {
		b.ServiceCategory = v
	}
	if v := optional(d.Timeframe); v != nil {
		b.Timeframe = v
	}
	if v := optional(d.Message); v != nil {
		b.Message = v
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
