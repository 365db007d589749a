package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// PriceAdminStore is the persistence PriceCatalogService needs.
type PriceAdminStore interface {
	List(ctx context.Context) ([]models.PriceRecord, error)
	Upsert(ctx context.Context, p *models.PriceRecord) error
	SetActive(ctx context.Context, serviceID string, active bool) error
}

// PriceInvalidator drops snapshot entries after an admin edit.
type PriceInvalidator interface {
	Invalidate(ctx context.Context, serviceIDs ...string) error
}

// CatalogEntry is a price row annotated with its client slug.
type CatalogEntry struct {
	models.PriceRecord
	Slug  string `json:"slug"`
	Known bool   `json:"known"`
}

// PriceCatalogService lets admins maintain service_prices.
type PriceCatalogService struct {
	repo   PriceAdminStore
	cache  PriceInvalidator
	mapper *catalog.Mapper
}

func NewPriceCatalogService(repo PriceAdminStore, cache PriceInvalidator, mapper *catalog.Mapper) *PriceCatalogService {
	return &PriceCatalogService{repo: repo, cache: cache, mapper: mapper}
}

// List returns every price row with its client slug.
func (s *PriceCatalogService) List(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CatalogEntry, 0, len(rows))
	for _, r := range rows {
		slug := s.mapper.ToClient(r.ServiceID)
		out = append(out, CatalogEntry{PriceRecord: r, Slug: slug, Known: s.mapper.IsKnown(slug)})
	}
	return out, nil
}

// Upsert stores a price. A client slug is accepted in place of the backend ID.
func (s *PriceCatalogService) Upsert(ctx context.Context, p *models.PriceRecord) error {
	p.ServiceID = s.mapper.ToBackend(strings.TrimSpace(p.ServiceID))
	switch {
	case p.ServiceID == "":
		return fmt.Errorf("%w: serviceId is required", utils.ErrValidation)
	case !p.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive", utils.ErrValidation)
	}
	if p.Currency == "" {
		p.Currency = "INR"
	}
	if p.Type == "" {
		p.Type = models.PriceTypeService
		if _, ok := s.mapper.Package(s.mapper.ToClient(p.ServiceID)); ok {
			p.Type = models.PriceTypePackage
		}
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert price %s: %w", p.ServiceID, err)
	}
	s.invalidate(ctx, p.ServiceID)
	log.Info().Str("service_id", p.ServiceID).Str("price", p.Price.String()).Msg("Price updated")
	return nil
}

// Toggle enables or disables a price row.
func (s *PriceCatalogService) Toggle(ctx context.Context, serviceID string, active bool) error {
	id := s.mapper.ToBackend(serviceID)
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return utils.ErrPriceNotFound
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *PriceCatalogService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.Warn().Err(err).Str("service_id", id).Msg("Failed to invalidate price snapshot")
	}
}
