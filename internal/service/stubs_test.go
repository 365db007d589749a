package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/repository"
	"github.com/p2hgit/p2h_api/pkg/razorpay"
)

// memBookingStore enforces the same unique keys as the consultations table.
type memBookingStore struct {
	mu      sync.Mutex
	rows    map[string]*models.Booking
	seq     int
	err     error
	updates int
}

func newMemBookingStore() *memBookingStore {
	return &memBookingStore{rows: map[string]*models.Booking{}}
}

func (s *memBookingStore) clone(b *models.Booking) *models.Booking {
	c := *b
	c.Services = append([]string(nil), b.Services...)
	return &c
}

func (s *memBookingStore) paymentTaken(b *models.Booking) bool {
	if b.PaymentID == nil {
		return false
	}
	for _, r := range s.rows {
		if r.ID != b.ID && r.PaymentID != nil && *r.PaymentID == *b.PaymentID {
			return true
		}
	}
	return false
}

func (s *memBookingStore) Insert(_ context.Context, b *models.Booking) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for _, r := range s.rows {
		if r.ReferenceID == b.ReferenceID {
			return false, nil
		}
	}
	if s.paymentTaken(b) {
		return false, repository.ErrDuplicatePaymentID
	}
	s.seq++
	b.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", s.seq)
	b.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Millisecond)
	b.UpdatedAt = b.CreatedAt
	s.rows[b.ID] = s.clone(b)
	return true, nil
}

func (s *memBookingStore) Update(_ context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	old, ok := s.rows[b.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if s.paymentTaken(b) {
		return repository.ErrDuplicatePaymentID
	}
	c := s.clone(b)
	c.EmailSent = old.EmailSent
	s.rows[b.ID] = c
	s.updates++
	return nil
}

func (s *memBookingStore) UpdateStatus(_ context.Context, id string, status models.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.Status = status
	return nil
}

func (s *memBookingStore) SetOrderID(_ context.Context, id, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.OrderID = &orderID
	return nil
}

func (s *memBookingStore) MarkEmailSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.EmailSent = true
	return nil
}

func (s *memBookingStore) find(match func(*models.Booking) bool) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var best *models.Booking
	for _, r := range s.rows {
		if match(r) && (best == nil || r.CreatedAt.After(best.CreatedAt)) {
			best = r
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	return s.clone(best), nil
}

func (s *memBookingStore) GetByID(_ context.Context, id string) (*models.Booking, error) {
	return s.find(func(b *models.Booking) bool { return b.ID == id })
}

func (s *memBookingStore) GetByReferenceID(_ context.Context, ref string) (*models.Booking, error) {
	return s.find(func(b *models.Booking) bool { return b.ReferenceID == ref })
}

func (s *memBookingStore) GetByPaymentID(_ context.Context, id string) (*models.Booking, error) {
	return s.find(func(b *models.Booking) bool { return b.PaymentID != nil && *b.PaymentID == id })
}

func (s *memBookingStore) GetByOrderID(_ context.Context, id string) (*models.Booking, error) {
	return s.find(func(b *models.Booking) bool { return b.OrderID != nil && *b.OrderID == id })
}

func (s *memBookingStore) List(_ context.Context, f models.BookingFilter) ([]models.Booking, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, r := range s.rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *s.clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s *memBookingStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rows, id)
	return nil
}

func (s *memBookingStore) GetStalePending(_ context.Context, _, _ time.Duration) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, r := range s.rows {
		if r.Status.IsPrePayment() && r.OrderID != nil {
			out = append(out, *s.clone(r))
		}
	}
	return out, nil
}

func (s *memBookingStore) GetUnsentConfirmations(_ context.Context, limit int) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, r := range s.rows {
		if r.Status == models.BookingConfirmed && !r.EmailSent && len(out) < limit {
			out = append(out, *s.clone(r))
		}
	}
	return out, nil
}

func (s *memBookingStore) all() []*models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Booking, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, s.clone(r))
	}
	return out
}

type memPaymentStore struct {
	mu   sync.Mutex
	rows map[string]*models.Payment
	err  error
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{rows: map[string]*models.Payment{}}
}

func (s *memPaymentStore) Upsert(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if old, ok := s.rows[p.RzpPaymentID]; ok {
		if old.Status == models.PaymentCaptured && p.Status != models.PaymentRefunded {
			p.Status = old.Status
		}
		if !p.Amount.IsPositive() {
			p.Amount = old.Amount
		}
		p.ID = old.ID
	} else {
		p.ID = int64(len(s.rows) + 1)
		p.CreatedAt = time.Now()
	}
	c := *p
	s.rows[p.RzpPaymentID] = &c
	return nil
}

func (s *memPaymentStore) GetByPaymentID(_ context.Context, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := *p
	return &c, nil
}

func (s *memPaymentStore) GetLatestByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.rows {
		if p.RzpOrderID != nil && *p.RzpOrderID == orderID {
			c := *p
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memPaymentStore) ListCapturedWithoutBooking(_ context.Context, _ time.Duration) ([]models.Payment, error) {
	return nil, nil
}

// stubGateway signs with a fixed secret and serves canned payments.
type stubGateway struct {
	secret      string
	payments    map[string]razorpay.Payment
	orderItems  map[string][]razorpay.Payment
	fetchErr    error
	orderErr    error
	orders      []razorpay.OrderRequest
	createCount int
}

func newStubGateway() *stubGateway {
	return &stubGateway{
		secret:     "test_secret",
		payments:   map[string]razorpay.Payment{},
		orderItems: map[string][]razorpay.Payment{},
	}
}

func (g *stubGateway) KeyID() string { return "rzp_test_key" }

func (g *stubGateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	g.createCount++
	g.orders = append(g.orders, req)
	return &razorpay.Order{
		ID:       fmt.Sprintf("order_%d", g.createCount),
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   razorpay.OrderCreated,
		Notes:    req.Notes,
	}, nil
}

func (g *stubGateway) FetchPayment(_ context.Context, id string) (*razorpay.Payment, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, &razorpay.APIError{StatusCode: 404, Code: "NOT_FOUND"}
	}
	return &p, nil
}

func (g *stubGateway) FetchOrderPayments(_ context.Context, orderID string) ([]razorpay.Payment, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.orderItems[orderID], nil
}

func (g *stubGateway) sign(orderID, paymentID string) string {
	return razorpay.Sign([]byte(orderID+"|"+paymentID), g.secret)
}

func (g *stubGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return g.sign(orderID, paymentID) == signature
}

type recordingMailer struct {
	mu            sync.Mutex
	confirmations []string
	alerts        []string
	err           error
}

func (m *recordingMailer) SendBookingConfirmation(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.confirmations = append(m.confirmations, b.ReferenceID)
	return nil
}

func (m *recordingMailer) SendRecoveryAlert(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, b.ReferenceID)
	return nil
}

type recordingRedeemer struct {
	mu    sync.Mutex
	codes []string
}

func (r *recordingRedeemer) ApplyByCode(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return nil
}

// stubPriceStore serves a fixed price table keyed by backend ID.
type stubPriceStore struct {
	prices map[string]int64
	err    error
	calls  int
}

func (s *stubPriceStore) GetActiveByIDs(_ context.Context, ids []string) ([]models.PriceRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.PriceRecord
	for _, id := range ids {
		if p, ok := s.prices[id]; ok {
			out = append(out, models.PriceRecord{
				ServiceID: id,
				Price:     decimal.NewFromInt(p),
				Currency:  "INR",
				IsActive:  true,
			})
		}
	}
	return out, nil
}

// memDiscountStore keys codes by upper-case text.
type memDiscountStore struct {
	codes map[string]*models.DiscountCode
	err   error
}

func newMemDiscountStore(codes ...*models.DiscountCode) *memDiscountStore {
	s := &memDiscountStore{codes: map[string]*models.DiscountCode{}}
	for i, c := range codes {
		c.ID = int64(i + 1)
		s.codes[strings.ToUpper(c.Code)] = c
	}
	return s
}

func (s *memDiscountStore) GetByCode(_ context.Context, code string) (*models.DiscountCode, error) {
	if s.err != nil {
		return nil, s.err
	}
	d, ok := s.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return d, nil
}

func (s *memDiscountStore) GetByID(_ context.Context, id int64) (*models.DiscountCode, error) {
	for _, d := range s.codes {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memDiscountStore) List(_ context.Context) ([]models.DiscountCode, error) {
	var out []models.DiscountCode
	for _, d := range s.codes {
		out = append(out, *d)
	}
	return out, nil
}

func (s *memDiscountStore) Create(_ context.Context, d *models.DiscountCode) error {
	if _, ok := s.codes[d.Code]; ok {
		return errors.New("duplicate")
	}
	d.ID = int64(len(s.codes) + 1)
	s.codes[d.Code] = d
	return nil
}

func (s *memDiscountStore) Update(_ context.Context, d *models.DiscountCode) error {
	s.codes[d.Code] = d
	return nil
}

func (s *memDiscountStore) SetActive(ctx context.Context, id int64, active bool) error {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	d.IsActive = active
	return nil
}

func (s *memDiscountStore) Delete(_ context.Context, id int64) error {
	for k, d := range s.codes {
		if d.ID == id {
			delete(s.codes, k)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *memDiscountStore) IncrementUsage(ctx context.Context, id int64) error {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	d.UsageCount++
	return nil
}
