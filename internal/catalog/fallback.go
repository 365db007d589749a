package catalog

import "github.com/shopspring/decimal"

// Sentinel QA service. Selecting exactly this service always quotes the
// configured test price.
const (
	TestServiceSlug = "test-service"
	TestServiceID   = "test_service"
)

// FallbackTable holds last-known-good prices keyed by backend ID.
type FallbackTable struct {
	prices map[string]decimal.Decimal
	inject map[string]bool
}

// NewFallbackTable builds the table from the package catalog. The test
// service is always injected; package fallbacks are injected into live
// price maps only when injectPackages is set.
func NewFallbackTable(m *Mapper, testPrice decimal.Decimal, injectPackages bool) *FallbackTable {
	t := &FallbackTable{
		prices: map[string]decimal.Decimal{TestServiceID: testPrice},
		inject: map[string]bool{TestServiceID: true},
	}
	for _, p := range m.Packages() {
		if p.FallbackPrice <= 0 {
			continue
		}
		t.prices[p.BackendID] = decimal.NewFromInt(p.FallbackPrice)
		t.inject[p.BackendID] = injectPackages
	}
	return t
}

// Price returns the last-known-good price for a backend ID.
func (t *FallbackTable) Price(backendID string) (decimal.Decimal, bool) {
	p, ok := t.prices[backendID]
	return p, ok
}

// ShouldInject reports whether the fallback may fill a gap in a live price map.
func (t *FallbackTable) ShouldInject(backendID string) bool {
	return t.inject[backendID]
}

// TestServicePrice returns the sentinel price.
func (t *FallbackTable) TestServicePrice() decimal.Decimal {
	return t.prices[TestServiceID]
}
