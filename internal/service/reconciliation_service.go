package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/repository"
	"github.com/p2hgit/p2h_api/internal/sse"
	"github.com/p2hgit/p2h_api/internal/utils"
	"github.com/p2hgit/p2h_api/pkg/razorpay"
)

// PaymentStore is the persistence for gateway payment records.
type PaymentStore interface {
	Upsert(ctx context.Context, p *models.Payment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Payment, error)
	GetLatestByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	ListCapturedWithoutBooking(ctx context.Context, olderThan time.Duration) ([]models.Payment, error)
}

// DiscountRedeemer records one use of a discount code.
type DiscountRedeemer interface {
	ApplyByCode(ctx context.Context, code string) error
}

// Payment status values reported to the checkout page.
const (
	StatusCaptured       = "captured"
	StatusFailed         = "failed"
	StatusPendingWebhook = "pending_webhook"
	StatusNotFound       = "not_found"
	StatusError          = "error"
)

// RecoveryClientName marks a booking synthesized from an orphan payment.
const RecoveryClientName = "Pending details"

// VerifyPaymentRequest is the checkout callback posted after the Razorpay widget closes.
type VerifyPaymentRequest struct {
	PaymentID      string                 `json:"razorpay_payment_id" binding:"required"`
	OrderID        string                 `json:"razorpay_order_id" binding:"required"`
	Signature      string                 `json:"razorpay_signature" binding:"required"`
	BookingDetails *models.BookingDetails `json:"bookingDetails"`
}

// VerifyPaymentResult reports what happened to the booking.
type VerifyPaymentResult struct {
	Success        bool                 `json:"success"`
	Verified       bool                 `json:"verified"`
	EmailSent      bool                 `json:"emailSent"`
	ConsultationID string               `json:"consultationId,omitempty"`
	ReferenceID    string               `json:"referenceId,omitempty"`
	Status         models.BookingStatus `json:"status,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// RecoveryInput is a captured payment with no booking to attach to.
type RecoveryInput struct {
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Email     string
	Phone     string
}

// PaymentStatusResult is the answer to a checkout status poll.
type PaymentStatusResult struct {
	Status   string           `json:"status"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

// ReconciliationService turns verified gateway payments into confirmed
// bookings. Every entry point converges on the same row: duplicate
// callbacks, webhooks and worker passes find the booking by reference,
// payment ID or order ID before writing.
type ReconciliationService struct {
	bookings  BookingStore
	payments  PaymentStore
	gateway   PaymentGateway
	discounts DiscountRedeemer
	mailer    Mailer
	sms       SMSSender
	notifier  sse.BookingNotifier
	currency  string
}

// NewReconciliationService constructs a ReconciliationService. Nil mailer,
// sms and notifier are replaced with no-ops.
func NewReconciliationService(
	bookings BookingStore,
	payments PaymentStore,
	gateway PaymentGateway,
	discounts DiscountRedeemer,
	mailer Mailer,
	sms SMSSender,
	notifier sse.BookingNotifier,
	currency string,
) *ReconciliationService {
	if mailer == nil {
		mailer = NopMailer{}
	}
	if sms == nil {
		sms = NopSMS{}
	}
	if notifier == nil {
		notifier = &sse.NopNotifier{}
	}
	if currency == "" {
		currency = "INR"
	}
	return &ReconciliationService{
		bookings:  bookings,
		payments:  payments,
		gateway:   gateway,
		discounts: discounts,
		mailer:    mailer,
		sms:       sms,
		notifier:  notifier,
		currency:  currency,
	}
}

// outcome is the result of attaching a payment to a booking.
type outcome struct {
	booking   *models.Booking
	changed   bool
	recovered bool
}

// VerifyAndReconcile checks the checkout signature and confirms the booking.
// Nothing is written unless the signature verifies.
func (s *ReconciliationService) VerifyAndReconcile(ctx context.Context, req VerifyPaymentRequest) VerifyPaymentResult {
	if !s.gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		log.Warn().
			Str("payment_id", req.PaymentID).
			Str("order_id", req.OrderID).
			Msg("Payment signature verification failed")
		return VerifyPaymentResult{Error: utils.ErrPaymentUnverified.Error()}
	}

	pay, err := s.recordVerifiedPayment(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("Failed to record payment")
		return VerifyPaymentResult{Verified: true, Error: utils.ErrPersistence.Error()}
	}

	out, err := s.reconcile(ctx, pay, req.BookingDetails, "")
	if err != nil {
		log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("Failed to reconcile booking")
		res := VerifyPaymentResult{Verified: true, Error: err.Error()}
		if !errors.Is(err, utils.ErrIllegalTransition) {
			res.Error = utils.ErrPersistence.Error()
		}
		return res
	}

	s.afterReconcile(ctx, out)
	return VerifyPaymentResult{
		Success:        true,
		Verified:       true,
		EmailSent:      out.booking.EmailSent,
		ConsultationID: out.booking.ID,
		ReferenceID:    out.booking.ReferenceID,
		Status:         out.booking.Status,
	}
}

// recordVerifiedPayment stores the payment. Gateway state is preferred; when
// the gateway cannot be reached the verified signature stands in for capture.
func (s *ReconciliationService) recordVerifiedPayment(ctx context.Context, req VerifyPaymentRequest) (*models.Payment, error) {
	orderID := req.OrderID
	pay := &models.Payment{
		RzpPaymentID: req.PaymentID,
		RzpOrderID:   &orderID,
		Currency:     s.currency,
		Status:       models.PaymentCaptured,
	}
	if d := req.BookingDetails; d != nil {
		pay.Amount = d.Amount
		pay.Email = optional(d.ClientEmail)
	}

	if gp, err := s.gateway.FetchPayment(ctx, req.PaymentID); err != nil {
		log.Warn().Err(err).Str("payment_id", req.PaymentID).Msg("Gateway payment fetch failed, trusting signature")
	} else {
		pay.Amount = razorpay.FromPaise(gp.Amount)
		if gp.Currency != "" {
			pay.Currency = gp.Currency
		}
		if gp.Status != "" {
			pay.Status = models.PaymentState(gp.Status)
		}
		if pay.Email == nil {
			pay.Email = optional(gp.Email)
		}
	}

	if err := s.payments.Upsert(ctx, pay); err != nil {
		return nil, err
	}
	return pay, nil
}

// reconcile attaches pay to its booking, creating one from details when none
// exists, or a needs-details booking when there are no details either.
func (s *ReconciliationService) reconcile(ctx context.Context, pay *models.Payment, details *models.BookingDetails, refHint string) (*outcome, error) {
	ref := refHint
	if details != nil && details.ReferenceID != "" {
		ref = details.ReferenceID
	}

	orderID := deref(pay.RzpOrderID)
	existing, err := s.findBooking(ctx, ref, pay.RzpPaymentID, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil && ref != "" && !paymentMatches(existing, pay) {
		// The named booking does not fit this payment; fall back to the
		// keys the gateway vouches for.
		named := existing
		if existing, err = s.findBooking(ctx, "", pay.RzpPaymentID, orderID); err != nil {
			return nil, err
		}
		if existing == nil {
			return s.holdForReview(ctx, named, pay, details)
		}
	}
	if existing != nil {
		return s.confirmExisting(ctx, existing, pay, details)
	}
	if details == nil {
		return s.recover(ctx, pay, "")
	}
	return s.createConfirmed(ctx, pay, details)
}

// findBooking looks a booking up by reference, then payment ID, then order ID.
// It returns nil without error when none matches.
func (s *ReconciliationService) findBooking(ctx context.Context, ref, paymentID, orderID string) (*models.Booking, error) {
	lookups := []struct {
		key string
		get func(context.Context, string) (*models.Booking, error)
	}{
		{ref, s.bookings.GetByReferenceID},
		{paymentID, s.bookings.GetByPaymentID},
		{orderID, s.bookings.GetByOrderID},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		b, err := l.get(ctx, l.key)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: find booking: %v", utils.ErrPersistence, err)
		}
	}
	return nil, nil
}

// paymentMatches reports whether pay may settle b. A booking bound to a
// different order, or priced above what was paid, is not settled by it.
func paymentMatches(b *models.Booking, pay *models.Payment) bool {
	if b.PaymentID != nil && *b.PaymentID == pay.RzpPaymentID {
		return true
	}
	if b.OrderID != nil && pay.RzpOrderID != nil && *b.OrderID != *pay.RzpOrderID {
		return false
	}
	if b.Amount.IsPositive() && pay.Amount.IsPositive() && pay.Amount.LessThan(b.Amount) {
		return false
	}
	return true
}

func (s *ReconciliationService) confirmExisting(ctx context.Context, b *models.Booking, pay *models.Payment, details *models.BookingDetails) (*outcome, error) {
	if !paymentMatches(b, pay) {
		return s.holdForReview(ctx, b, pay, details)
	}
	if b.PaymentID != nil && *b.PaymentID != pay.RzpPaymentID && b.Status == models.BookingConfirmed {
		log.Warn().
			Str("reference_id", b.ReferenceID).
			Str("booking_payment_id", *b.PaymentID).
			Str("payment_id", pay.RzpPaymentID).
			Msg("Second payment for a confirmed booking, leaving booking untouched")
		return &outcome{booking: b}, nil
	}

	target := models.BookingConfirmed
	if b.Status == models.BookingNeedsDetails && details == nil {
		target = models.BookingNeedsDetails
	}
	changed, err := b.Transition(target)
	if err != nil {
		log.Warn().Err(err).Str("reference_id", b.ReferenceID).Str("payment_id", pay.RzpPaymentID).
			Msg("Payment arrived for a closed booking")
		return nil, err
	}

	if details != nil {
		if err := fillFromDetails(b, *details); err != nil {
			return nil, err
		}
	}
	completed := models.PaymentStatusCompleted
	b.PaymentID = &pay.RzpPaymentID
	if pay.RzpOrderID != nil {
		b.OrderID = pay.RzpOrderID
	}
	b.PaymentStatus = &completed
	if b.Amount.IsZero() && pay.Amount.IsPositive() {
		b.Amount = pay.Amount
	}

	if err := s.bookings.Update(ctx, b); err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentID) {
			return s.converge(ctx, pay, nil)
		}
		return nil, fmt.Errorf("%w: update booking: %v", utils.ErrPersistence, err)
	}
	return &outcome{booking: b, changed: changed}, nil
}

// holdForReview parks a payment that does not fit the booking it was matched
// to as its own needs-details booking. b is left untouched.
func (s *ReconciliationService) holdForReview(ctx context.Context, b *models.Booking, pay *models.Payment, details *models.BookingDetails) (*outcome, error) {
	log.Warn().
		Str("reference_id", b.ReferenceID).
		Str("booking_order_id", deref(b.OrderID)).
		Str("booking_amount", b.Amount.String()).
		Str("payment_id", pay.RzpPaymentID).
		Str("order_id", deref(pay.RzpOrderID)).
		Str("amount", pay.Amount.String()).
		Msg("Payment does not match booking, holding for review")
	phone := ""
	if details != nil {
		phone = details.ClientPhone
	}
	return s.recover(ctx, pay, phone)
}

func (s *ReconciliationService) createConfirmed(ctx context.Context, pay *models.Payment, details *models.BookingDetails) (*outcome, error) {
	b, err := bookingFromDetails(*details)
	if err != nil {
		return nil, err
	}
	if b.ReferenceID == "" {
		if b.ReferenceID, err = utils.GenerateReferenceID(); err != nil {
			return nil, fmt.Errorf("generate reference: %w", err)
		}
	}
	completed := models.PaymentStatusCompleted
	b.Status = models.BookingConfirmed
	b.PaymentID = &pay.RzpPaymentID
	b.OrderID = pay.RzpOrderID
	b.PaymentStatus = &completed
	b.Amount = pay.Amount

	inserted, err := s.bookings.Insert(ctx, b)
	if errors.Is(err, repository.ErrDuplicatePaymentID) {
		return s.converge(ctx, pay, details)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: insert booking: %v", utils.ErrPersistence, err)
	}
	if !inserted {
		// Lost the race on reference_id; update the winner instead.
		existing, err := s.bookings.GetByReferenceID(ctx, b.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("%w: reload booking: %v", utils.ErrPersistence, err)
		}
		return s.confirmExisting(ctx, existing, pay, details)
	}

	log.Info().
		Str("reference_id", b.ReferenceID).
		Str("payment_id", pay.RzpPaymentID).
		Msg("Booking created from verified payment")
	return &outcome{booking: b, changed: true}, nil
}

// converge reloads the booking that already holds the payment and applies
// details to it when there are any.
func (s *ReconciliationService) converge(ctx context.Context, pay *models.Payment, details *models.BookingDetails) (*outcome, error) {
	b, err := s.bookings.GetByPaymentID(ctx, pay.RzpPaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: reload by payment id: %v", utils.ErrPersistence, err)
	}
	if details == nil {
		return &outcome{booking: b}, nil
	}
	return s.confirmExisting(ctx, b, pay, details)
}

// RecoverPayment stores a captured payment that has no booking as a
// needs-details booking so the money is never lost. Repeated calls for the
// same payment return the same booking.
func (s *ReconciliationService) RecoverPayment(ctx context.Context, in RecoveryInput) (*models.Booking, error) {
	existing, err := s.findBooking(ctx, "", in.PaymentID, in.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	pay := &models.Payment{
		RzpPaymentID: in.PaymentID,
		RzpOrderID:   optional(in.OrderID),
		Amount:       in.Amount,
		Currency:     s.currency,
		Status:       models.PaymentCaptured,
		Email:        optional(in.Email),
	}
	out, err := s.recover(ctx, pay, in.Phone)
	if err != nil {
		return nil, err
	}
	s.afterReconcile(ctx, out)
	return out.booking, nil
}

func (s *ReconciliationService) recover(ctx context.Context, pay *models.Payment, phone string) (*outcome, error) {
	ref, err := utils.GenerateRecoveryReferenceID()
	if err != nil {
		return nil, fmt.Errorf("generate reference: %w", err)
	}
	completed := models.PaymentStatusCompleted
	b := &models.Booking{
		ReferenceID:   ref,
		ClientName:    RecoveryClientName,
		ClientEmail:   deref(pay.Email),
		ClientPhone:   optional(phone),
		Status:        models.BookingNeedsDetails,
		PaymentID:     &pay.RzpPaymentID,
		OrderID:       pay.RzpOrderID,
		PaymentStatus: &completed,
		Amount:        pay.Amount,
	}

	if _, err := s.bookings.Insert(ctx, b); err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentID) {
			return s.converge(ctx, pay, nil)
		}
		return nil, fmt.Errorf("%w: insert recovery booking: %v", utils.ErrPersistence, err)
	}

	log.Warn().
		Str("reference_id", b.ReferenceID).
		Str("payment_id", pay.RzpPaymentID).
		Str("amount", pay.Amount.String()).
		Msg("Payment recovered without booking details")
	return &outcome{booking: b, changed: true, recovered: true}, nil
}

// afterReconcile runs the side effects of a state change. Failures are
// logged and never undo the booking.
func (s *ReconciliationService) afterReconcile(ctx context.Context, out *outcome) {
	b := out.booking
	if out.recovered {
		if err := s.mailer.SendRecoveryAlert(ctx, b); err != nil {
			log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to send recovery alert")
		}
		s.notifier.NotifyPaymentRecovered(b)
		return
	}
	if b.Status != models.BookingConfirmed {
		return
	}

	if out.changed {
		if b.DiscountCode != nil && *b.DiscountCode != "" && s.discounts != nil {
			if err := s.discounts.ApplyByCode(ctx, *b.DiscountCode); err != nil {
				log.Error().Err(err).Str("code", *b.DiscountCode).Msg("Failed to record discount usage")
			}
		}
		s.notifier.NotifyBookingStatusChanged(b)
	}

	if !b.EmailSent {
		s.sendConfirmation(ctx, b)
	}
}

// sendConfirmation emails the client and records delivery. SMS follows
// only the first successful email.
func (s *ReconciliationService) sendConfirmation(ctx context.Context, b *models.Booking) bool {
	if err := s.mailer.SendBookingConfirmation(ctx, b); err != nil {
		log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to send confirmation email")
		return false
	}
	if err := s.bookings.MarkEmailSent(ctx, b.ID); err != nil {
		log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to record email_sent")
		return false
	}
	b.EmailSent = true

	if err := s.sms.SendBookingConfirmation(ctx, b); err != nil {
		log.Warn().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to send confirmation SMS")
	}
	return true
}

// HandleWebhook applies a verified Razorpay webhook event. Only persistence
// failures are returned so the gateway retries delivery.
func (s *ReconciliationService) HandleWebhook(ctx context.Context, event *razorpay.WebhookEvent) error {
	p := event.PaymentEntity()
	if p == nil || p.ID == "" {
		log.Debug().Str("event", event.Event).Msg("Webhook without payment entity ignored")
		return nil
	}

	ref := p.Notes["reference_id"]
	if o := event.OrderEntity(); ref == "" && o != nil {
		ref = o.Notes["reference_id"]
	}

	switch event.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid:
		pay, err := s.recordGatewayPayment(ctx, p)
		if err != nil {
			return err
		}
		out, err := s.reconcile(ctx, pay, nil, ref)
		if errors.Is(err, utils.ErrIllegalTransition) {
			return nil
		}
		if err != nil {
			return err
		}
		s.afterReconcile(ctx, out)

	case razorpay.EventPaymentFailed:
		if _, err := s.recordGatewayPayment(ctx, p); err != nil {
			return err
		}
		_, err := s.markFailed(ctx, ref, p)
		return err

	case razorpay.EventPaymentAuthorized:
		if _, err := s.recordGatewayPayment(ctx, p); err != nil {
			return err
		}

	default:
		log.Debug().Str("event", event.Event).Msg("Unhandled webhook event")
	}
	return nil
}

func (s *ReconciliationService) recordGatewayPayment(ctx context.Context, p *razorpay.Payment) (*models.Payment, error) {
	pay := &models.Payment{
		RzpPaymentID: p.ID,
		RzpOrderID:   optional(p.OrderID),
		Amount:       razorpay.FromPaise(p.Amount),
		Currency:     p.Currency,
		Status:       models.PaymentState(p.Status),
		Email:        optional(p.Email),
	}
	if pay.Currency == "" {
		pay.Currency = s.currency
	}
	if err := s.payments.Upsert(ctx, pay); err != nil {
		return nil, fmt.Errorf("%w: upsert payment: %v", utils.ErrPersistence, err)
	}
	return pay, nil
}

// markFailed moves a booking still waiting for money to payment_failed and
// reports whether it did. The failed payment ID is not attached since the
// client may retry.
func (s *ReconciliationService) markFailed(ctx context.Context, ref string, p *razorpay.Payment) (bool, error) {
	b, err := s.findBooking(ctx, ref, "", p.OrderID)
	if err != nil {
		return false, err
	}
	if b == nil || !b.Status.IsPrePayment() {
		return false, nil
	}
	changed, err := b.Transition(models.BookingPaymentFailed)
	if err != nil || !changed {
		return false, nil
	}
	failed := models.PaymentStatusFailed
	b.PaymentStatus = &failed
	if err := s.bookings.Update(ctx, b); err != nil {
		return false, fmt.Errorf("%w: update booking: %v", utils.ErrPersistence, err)
	}
	log.Info().
		Str("reference_id", b.ReferenceID).
		Str("payment_id", p.ID).
		Str("reason", p.ErrorDescription).
		Msg("Booking payment failed")
	s.notifier.NotifyBookingStatusChanged(b)
	return true, nil
}

// PaymentStatus reports what the checkout page should tell the client while
// it waits for the webhook.
func (s *ReconciliationService) PaymentStatus(ctx context.Context, orderID, paymentID string) PaymentStatusResult {
	var (
		pay *models.Payment
		err error
	)
	if paymentID != "" {
		pay, err = s.payments.GetByPaymentID(ctx, paymentID)
	} else {
		pay, err = s.payments.GetLatestByOrderID(ctx, orderID)
	}
	switch {
	case err == nil:
		return paymentStatusResult(string(pay.Status), pay.Amount, pay.Currency)
	case !errors.Is(err, sql.ErrNoRows):
		log.Error().Err(err).Str("order_id", orderID).Str("payment_id", paymentID).Msg("Payment status lookup failed")
		return PaymentStatusResult{Status: StatusError}
	}

	gp, err := s.fetchGatewayPayment(ctx, orderID, paymentID)
	switch {
	case err == nil && gp == nil, razorpay.IsNotFound(err):
		return PaymentStatusResult{Status: StatusNotFound}
	case err != nil:
		log.Warn().Err(err).Str("order_id", orderID).Str("payment_id", paymentID).Msg("Gateway status lookup failed")
		return PaymentStatusResult{Status: StatusError}
	}
	res := paymentStatusResult(gp.Status, razorpay.FromPaise(gp.Amount), gp.Currency)
	// Not in our database yet: the webhook has not landed.
	if res.Status == StatusCaptured {
		res.Status = StatusPendingWebhook
	}
	return res
}

// fetchGatewayPayment returns the payment, or the best payment on the order.
func (s *ReconciliationService) fetchGatewayPayment(ctx context.Context, orderID, paymentID string) (*razorpay.Payment, error) {
	if paymentID != "" {
		return s.gateway.FetchPayment(ctx, paymentID)
	}
	items, err := s.gateway.FetchOrderPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return pickPayment(items), nil
}

// pickPayment prefers a captured payment, then authorized, then the first.
func pickPayment(items []razorpay.Payment) *razorpay.Payment {
	if len(items) == 0 {
		return nil
	}
	for _, want := range []string{razorpay.PaymentCaptured, razorpay.PaymentAuthorized} {
		for i := range items {
			if items[i].Status == want {
				return &items[i]
			}
		}
	}
	return &items[0]
}

func paymentStatusResult(gatewayStatus string, amount decimal.Decimal, currency string) PaymentStatusResult {
	res := PaymentStatusResult{Currency: currency}
	if amount.IsPositive() {
		res.Amount = &amount
	}
	switch gatewayStatus {
	case razorpay.PaymentCaptured:
		res.Status = StatusCaptured
	case razorpay.PaymentFailed:
		res.Status = StatusFailed
	default:
		res.Status = StatusPendingWebhook
	}
	return res
}

// ReconcileStale asks the gateway about bookings stuck before payment.
// Captured orders are confirmed; orders whose every attempt failed are
// marked payment_failed. It returns how many bookings changed.
func (s *ReconciliationService) ReconcileStale(ctx context.Context, staleAfter, maxAge time.Duration) (int, error) {
	bookings, err := s.bookings.GetStalePending(ctx, staleAfter, maxAge)
	if err != nil {
		return 0, fmt.Errorf("%w: stale bookings: %v", utils.ErrPersistence, err)
	}

	changed := 0
	for i := range bookings {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		b := &bookings[i]
		items, err := s.gateway.FetchOrderPayments(ctx, deref(b.OrderID))
		if err != nil {
			log.Warn().Err(err).Str("reference_id", b.ReferenceID).Msg("Gateway order lookup failed")
			continue
		}
		gp := pickPayment(items)
		if gp == nil {
			continue
		}

		switch gp.Status {
		case razorpay.PaymentCaptured:
			pay, err := s.recordGatewayPayment(ctx, gp)
			if err != nil {
				log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to record payment")
				continue
			}
			out, err := s.reconcile(ctx, pay, nil, b.ReferenceID)
			if err != nil {
				log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to reconcile stale booking")
				continue
			}
			s.afterReconcile(ctx, out)
			if out.changed {
				changed++
			}
		case razorpay.PaymentFailed:
			marked, err := s.markFailed(ctx, b.ReferenceID, gp)
			if err != nil {
				log.Error().Err(err).Str("reference_id", b.ReferenceID).Msg("Failed to mark booking failed")
				continue
			}
			if marked {
				changed++
			}
		}
	}
	return changed, nil
}

// RecoverOrphanPayments turns captured payments that no booking references
// into needs-details bookings.
func (s *ReconciliationService) RecoverOrphanPayments(ctx context.Context, olderThan time.Duration) (int, error) {
	orphans, err := s.payments.ListCapturedWithoutBooking(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("%w: orphan payments: %v", utils.ErrPersistence, err)
	}
	recovered := 0
	for i := range orphans {
		p := orphans[i]
		_, err := s.RecoverPayment(ctx, RecoveryInput{
			PaymentID: p.RzpPaymentID,
			OrderID:   deref(p.RzpOrderID),
			Amount:    p.Amount,
			Email:     deref(p.Email),
		})
		if err != nil {
			log.Error().Err(err).Str("payment_id", p.RzpPaymentID).Msg("Failed to recover orphan payment")
			continue
		}
		recovered++
	}
	return recovered, nil
}

// RetryUnsentEmails resends confirmations that failed earlier.
func (s *ReconciliationService) RetryUnsentEmails(ctx context.Context, limit int) (int, error) {
	pending, err := s.bookings.GetUnsentConfirmations(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("%w: unsent confirmations: %v", utils.ErrPersistence, err)
	}
	sent := 0
	for i := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if s.sendConfirmation(ctx, &pending[i]) {
			sent++
		}
	}
	return sent, nil
}

// CompleteRecovery fills in the details of a needs-details booking and
// confirms it.
func (s *ReconciliationService) CompleteRecovery(ctx context.Context, bookingID string, details models.BookingDetails) (*models.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, mapBookingErr(err)
	}
	if b.Status != models.BookingNeedsDetails {
		return nil, fmt.Errorf("%w: booking %s is %s", utils.ErrIllegalTransition, b.ReferenceID, b.Status)
	}
	if b.ClientName == RecoveryClientName {
		b.ClientName = ""
	}
	if err := fillFromDetails(b, details); err != nil {
		return nil, err
	}
	if b.ClientName == "" || b.ClientEmail == "" {
		return nil, fmt.Errorf("%w: client name and email are required", utils.ErrValidation)
	}
	changed, err := b.Transition(models.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	if err := s.bookings.Update(ctx, b); err != nil {
		return nil, mapBookingErr(err)
	}
	log.Info().Str("reference_id", b.ReferenceID).Msg("Recovered booking completed")
	s.afterReconcile(ctx, &outcome{booking: b, changed: changed})
	return b, nil
}
