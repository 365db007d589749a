package service

import (
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/models"
)

// PriceMapper turns backend price rows into a map keyed by client slug.
type PriceMapper struct {
	mapper   *catalog.Mapper
	fallback *catalog.FallbackTable
}

// NewPriceMapper creates a PriceMapper.
func NewPriceMapper(mapper *catalog.Mapper, fallback *catalog.FallbackTable) *PriceMapper {
	return &PriceMapper{mapper: mapper, fallback: fallback}
}

// ToPricingMap converts rows into slug -> price. Only active, positive prices
// are kept. When a slug has rows under both its canonical ID and an alias,
// the canonical row wins. Requested IDs with no live row receive their
// fallback price when the fallback table allows injection.
func (m *PriceMapper) ToPricingMap(records []models.PriceRecord, requestedIDs []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(records))
	for _, rec := range records {
		if !rec.IsActive || !rec.Price.IsPositive() {
			continue
		}
		slug := m.mapper.ToClient(rec.ServiceID)
		_, exists := out[slug]
		if exists && rec.ServiceID != m.mapper.ToBackend(slug) {
			continue
		}
		out[slug] = rec.Price
	}

	for _, id := range requestedIDs {
		if !m.fallback.ShouldInject(id) {
			continue
		}
		slug := m.mapper.ToClient(id)
		if _, ok := out[slug]; ok {
			continue
		}
		if p, ok := m.fallback.Price(id); ok && p.IsPositive() {
			out[slug] = p
		}
	}
	return out
}
