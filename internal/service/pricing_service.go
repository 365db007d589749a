package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// PriceSource fetches live price rows.
type PriceSource interface {
	Fetch(ctx context.Context, serviceIDs []string) ([]models.PriceRecord, error)
}

// DiscountValidator checks a code against a purchase.
type DiscountValidator interface {
	Validate(ctx context.Context, code string, total decimal.Decimal, serviceIDs []string) ValidationResult
}

// ResolveRequest is a service selection to be priced.
type ResolveRequest struct {
	Services        []string `json:"services"`
	ServiceCategory string   `json:"serviceCategory"`
	DiscountCode    string   `json:"discountCode"`
	Email           string   `json:"email"`
}

// AppliedDiscount is a validated code attached to a quote.
type AppliedDiscount struct {
	ID      int64               `json:"-"`
	Code    string              `json:"code"`
	Type    models.DiscountType `json:"type"`
	Amount  decimal.Decimal     `json:"amount"`
	Message string              `json:"message"`
}

// Quote is the priced selection. PricingMap only holds positive prices;
// a missing slug means the price is unknown. FinalPrice is zero whenever
// any selected price is unknown, and PriceUnavailable is set so checkout
// can be blocked.
type Quote struct {
	PricingMap       map[string]decimal.Decimal `json:"pricingMap"`
	FinalPrice       decimal.Decimal            `json:"finalPrice"`
	IsPackage        bool                       `json:"isPackage"`
	PackageSlug      string                     `json:"packageSlug,omitempty"`
	Discount         *AppliedDiscount           `json:"discount,omitempty"`
	DiscountMessage  string                     `json:"discountMessage,omitempty"`
	Payable          decimal.Decimal            `json:"payable"`
	PriceUnavailable bool                       `json:"priceUnavailable"`
	IsTestService    bool                       `json:"isTestService,omitempty"`
	Currency         string                     `json:"currency"`
	TableVersion     string                     `json:"tableVersion"`
}

// PricingService resolves a selection into a quote.
type PricingService struct {
	mapper      *catalog.Mapper
	fetcher     PriceSource
	priceMapper *PriceMapper
	fallback    *catalog.FallbackTable
	discounts   DiscountValidator
	bundleMul   decimal.Decimal
	currency    string
}

// NewPricingService creates a PricingService. bundleRate is the fraction
// taken off the sum of a package's services when the package has no price
// of its own (0.15 means 15% off).
func NewPricingService(
	mapper *catalog.Mapper,
	fetcher PriceSource,
	fallback *catalog.FallbackTable,
	discounts DiscountValidator,
	bundleRate float64,
	currency string,
) *PricingService {
	if currency == "" {
		currency = "INR"
	}
	return &PricingService{
		mapper:      mapper,
		fetcher:     fetcher,
		priceMapper: NewPriceMapper(mapper, fallback),
		fallback:    fallback,
		discounts:   discounts,
		bundleMul:   decimal.NewFromInt(1).Sub(decimal.NewFromFloat(bundleRate)),
		currency:    currency,
	}
}

// Resolve prices the selection. It only returns an error for an empty
// selection; fetch failures produce a quote with PriceUnavailable set.
func (s *PricingService) Resolve(ctx context.Context, req ResolveRequest) (*Quote, error) {
	services := catalog.Dedup(req.Services)
	if len(services) == 0 {
		return nil, utils.ErrEmptySelection
	}

	q := &Quote{
		PricingMap:   map[string]decimal.Decimal{},
		FinalPrice:   decimal.Zero,
		Payable:      decimal.Zero,
		Currency:     s.currency,
		TableVersion: catalog.TableVersion,
	}

	// QA sentinel: fixed price, no lookups, no discounts.
	if len(services) == 1 && services[0] == catalog.TestServiceSlug {
		price := s.fallback.TestServicePrice()
		q.PricingMap[catalog.TestServiceSlug] = price
		q.FinalPrice = price
		q.Payable = price
		q.IsTestService = true
		return q, nil
	}

	pkg, isPackage := s.mapper.DetectPackage(services)
	ids := s.mapper.Expand(services)
	if isPackage {
		ids = append(ids, s.mapper.ExpandPackages([]string{pkg.Slug})...)
		q.IsPackage = true
		q.PackageSlug = pkg.Slug
	}

	records, err := s.fetcher.Fetch(ctx, ids)
	if err != nil {
		log.Error().Err(err).
			Strs("services", services).
			Str("category", req.ServiceCategory).
			Msg("Pricing fetch failed")
		q.PriceUnavailable = true
		return q, nil
	}
	q.PricingMap = s.priceMapper.ToPricingMap(records, ids)

	if isPackage {
		q.FinalPrice = s.packagePrice(q.PricingMap, pkg)
	} else {
		q.FinalPrice, _ = sumPrices(q.PricingMap, services)
	}

	if !q.FinalPrice.IsPositive() {
		q.FinalPrice = decimal.Zero
		q.PriceUnavailable = true
		log.Warn().
			Strs("services", services).
			Str("category", req.ServiceCategory).
			Msg("Price unavailable for selection")
		return q, nil
	}
	q.Payable = q.FinalPrice

	if code := strings.TrimSpace(req.DiscountCode); code != "" && s.discounts != nil {
		s.applyDiscount(ctx, q, code, services, pkg)
	}

	log.Debug().
		Strs("services", services).
		Bool("package", q.IsPackage).
		Str("final_price", q.FinalPrice.String()).
		Str("payable", q.Payable.String()).
		Msg("Quote resolved")
	return q, nil
}

// packagePrice uses the package's own price when present. Otherwise it
// discounts the sum of the constituents and records the result under the
// package slug.
func (s *PricingService) packagePrice(pm map[string]decimal.Decimal, pkg *catalog.Package) decimal.Decimal {
	if p, ok := pm[pkg.Slug]; ok && p.IsPositive() {
		return p
	}
	sum, complete := sumPrices(pm, pkg.Services)
	if !complete {
		return decimal.Zero
	}
	bundled := sum.Mul(s.bundleMul).Round(0)
	if bundled.IsPositive() {
		pm[pkg.Slug] = bundled
	}
	return bundled
}

func (s *PricingService) applyDiscount(ctx context.Context, q *Quote, code string, services []string, pkg *catalog.Package) {
	ids := append([]string{}, services...)
	ids = append(ids, s.mapper.Expand(services)...)
	if pkg != nil {
		ids = append(ids, pkg.Slug, pkg.BackendID)
	}

	res := s.discounts.Validate(ctx, code, q.FinalPrice, ids)
	if !res.Valid {
		q.DiscountMessage = res.Message
		return
	}
	q.Discount = &AppliedDiscount{
		ID:      res.DiscountCode.ID,
		Code:    res.DiscountCode.Code,
		Type:    res.DiscountCode.DiscountType,
		Amount:  res.DiscountAmount,
		Message: res.Message,
	}
	q.Payable = q.FinalPrice.Sub(res.DiscountAmount)
	if q.Payable.IsNegative() {
		q.Payable = decimal.Zero
	}
}

// sumPrices adds the prices of slugs. complete is false if any slug has no price.
func sumPrices(pm map[string]decimal.Decimal, slugs []string) (decimal.Decimal, bool) {
	sum := decimal.Zero
	for _, s := range slugs {
		p, ok := pm[s]
		if !ok {
			return decimal.Zero, false
		}
		sum = sum.Add(p)
	}
	return sum, true
}
