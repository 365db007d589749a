package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// DiscountStore is the persistence DiscountService needs.
type DiscountStore interface {
	GetByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	GetByID(ctx context.Context, id int64) (*models.DiscountCode, error)
	List(ctx context.Context) ([]models.DiscountCode, error)
	Create(ctx context.Context, d *models.DiscountCode) error
	Update(ctx context.Context, d *models.DiscountCode) error
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
	IncrementUsage(ctx context.Context, id int64) error
}

// ValidationResult is the outcome of checking a discount code.
type ValidationResult struct {
	Valid          bool                 `json:"valid"`
	DiscountCode   *models.DiscountCode `json:"discountCode,omitempty"`
	DiscountAmount decimal.Decimal      `json:"discountAmount"`
	Message        string               `json:"message"`
}

// Validation messages shown to the customer.
const (
	msgDiscountInvalid       = "Invalid discount code"
	msgDiscountNotStarted    = "This discount code is not active yet"
	msgDiscountExpired       = "This discount code has expired"
	msgDiscountExhausted     = "This discount code has reached its usage limit"
	msgDiscountMinimum       = "A minimum purchase of ₹%s is required for this code"
	msgDiscountNotApplicable = "This discount code does not apply to the selected services"
	msgDiscountUnavailable   = "Unable to validate discount code right now"
	msgDiscountApplied       = "Discount applied successfully"
)

var hundred = decimal.NewFromInt(100)

// DiscountService validates, applies and administers discount codes.
type DiscountService struct {
	repo DiscountStore
	now  func() time.Time
}

// NewDiscountService creates a DiscountService. A nil clock means time.Now.
func NewDiscountService(repo DiscountStore, now func() time.Time) *DiscountService {
	if now == nil {
		now = time.Now
	}
	return &DiscountService{repo: repo, now: now}
}

// Validate runs the ordered checks and returns the first failure, or the
// computed discount. The amount never exceeds the code's cap or the total.
func (s *DiscountService) Validate(ctx context.Context, code string, total decimal.Decimal, serviceIDs []string) ValidationResult {
	code = strings.TrimSpace(code)
	if code == "" {
		return ValidationResult{Message: msgDiscountInvalid}
	}

	d, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ValidationResult{Message: msgDiscountInvalid}
		}
		log.Error().Err(err).Str("code", code).Msg("Failed to load discount code")
		return ValidationResult{Message: msgDiscountUnavailable}
	}

	// 1. exists and active
	if !d.IsActive {
		return ValidationResult{Message: msgDiscountInvalid}
	}

	// 2. activity window
	now := s.now()
	if d.StartDate != nil && now.Before(*d.StartDate) {
		return ValidationResult{Message: msgDiscountNotStarted}
	}
	if d.ExpiryDate != nil && now.After(*d.ExpiryDate) {
		return ValidationResult{Message: msgDiscountExpired}
	}

	// 3. usage limit
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return ValidationResult{Message: msgDiscountExhausted}
	}

	// 4. minimum purchase
	if d.MinPurchaseAmount.Valid && total.LessThan(d.MinPurchaseAmount.Decimal) {
		return ValidationResult{Message: fmt.Sprintf(msgDiscountMinimum, d.MinPurchaseAmount.Decimal.StringFixed(0))}
	}

	// 5. applicable services
	if len(d.ApplicableServices) > 0 && len(serviceIDs) > 0 && !overlaps(d.ApplicableServices, serviceIDs) {
		return ValidationResult{Message: msgDiscountNotApplicable}
	}

	return ValidationResult{
		Valid:          true,
		DiscountCode:   d,
		DiscountAmount: ComputeDiscount(d, total),
		Message:        msgDiscountApplied,
	}
}

// ComputeDiscount returns the discount for total, clamped to the code's
// maximum and to total itself, rounded to the paisa.
func ComputeDiscount(d *models.DiscountCode, total decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.DiscountType {
	case models.DiscountPercentage:
		amount = total.Mul(d.DiscountValue).Div(hundred)
	case models.DiscountFixed:
		amount = d.DiscountValue
	default:
		return decimal.Zero
	}
	if d.MaxDiscountAmount.Valid && amount.GreaterThan(d.MaxDiscountAmount.Decimal) {
		amount = d.MaxDiscountAmount.Decimal
	}
	if amount.GreaterThan(total) {
		amount = total
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount.Round(2)
}

// Apply records one redemption of the code.
func (s *DiscountService) Apply(ctx context.Context, id int64) error {
	if err := s.repo.IncrementUsage(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrDiscountNotFound
		}
		return fmt.Errorf("apply discount %d: %w", id, err)
	}
	return nil
}

// ApplyByCode records one redemption of the code identified by its text.
func (s *DiscountService) ApplyByCode(ctx context.Context, code string) error {
	d, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrDiscountNotFound
		}
		return err
	}
	return s.Apply(ctx, d.ID)
}

// List returns every discount code.
func (s *DiscountService) List(ctx context.Context) ([]models.DiscountCode, error) {
	return s.repo.List(ctx)
}

// Get returns a code by ID.
func (s *DiscountService) Get(ctx context.Context, id int64) (*models.DiscountCode, error) {
	d, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, utils.ErrDiscountNotFound
	}
	return d, err
}

// Create validates and stores a new code.
func (s *DiscountService) Create(ctx context.Context, d *models.DiscountCode) error {
	if err := validateDiscountDefinition(d); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, d); err != nil {
		if isUniqueViolation(err) {
			return utils.ErrDuplicateDiscount
		}
		return err
	}
	log.Info().Str("code", d.Code).Int64("id", d.ID).Msg("Discount code created")
	return nil
}

// Update validates and rewrites an existing code.
func (s *DiscountService) Update(ctx context.Context, d *models.DiscountCode) error {
	if err := validateDiscountDefinition(d); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrDiscountNotFound
		}
		if isUniqueViolation(err) {
			return utils.ErrDuplicateDiscount
		}
		return err
	}
	return nil
}

// Toggle flips the active flag.
func (s *DiscountService) Toggle(ctx context.Context, id int64, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrDiscountNotFound
		}
		return err
	}
	return nil
}

// Delete removes a code.
func (s *DiscountService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrDiscountNotFound
		}
		return err
	}
	return nil
}

func validateDiscountDefinition(d *models.DiscountCode) error {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	switch {
	case d.Code == "":
		return fmt.Errorf("%w: code is required", utils.ErrDiscountInvalid)
	case d.DiscountType != models.DiscountPercentage && d.DiscountType != models.DiscountFixed:
		return fmt.Errorf("%w: discountType must be percentage or fixed", utils.ErrDiscountInvalid)
	case !d.DiscountValue.IsPositive():
		return fmt.Errorf("%w: discountValue must be positive", utils.ErrDiscountInvalid)
	case d.DiscountType == models.DiscountPercentage && d.DiscountValue.GreaterThan(hundred):
		return fmt.Errorf("%w: percentage cannot exceed 100", utils.ErrDiscountInvalid)
	case d.UsageLimit != nil && *d.UsageLimit < 0:
		return fmt.Errorf("%w: usageLimit cannot be negative", utils.ErrDiscountInvalid)
	case d.StartDate != nil && d.ExpiryDate != nil && d.ExpiryDate.Before(*d.StartDate):
		return fmt.Errorf("%w: expiryDate is before startDate", utils.ErrDiscountInvalid)
	}
	return nil
}

func overlaps(a []string, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[strings.ToLower(s)] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[strings.ToLower(s)]; ok {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
