package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/internal/models"
)

// PriceStore reads active price rows by backend ID.
type PriceStore interface {
	GetActiveByIDs(ctx context.Context, serviceIDs []string) ([]models.PriceRecord, error)
}

// PriceSnapshot stores last-known-good price rows.
type PriceSnapshot interface {
	Store(ctx context.Context, records []models.PriceRecord) error
	Load(ctx context.Context, serviceIDs []string) ([]models.PriceRecord, error)
}

// PriceFetcher queries live prices under a bounded timeout and falls back
// to the last snapshot when the store is unreachable.
type PriceFetcher struct {
	store    PriceStore
	snapshot PriceSnapshot
	timeout  time.Duration
}

// NewPriceFetcher creates a PriceFetcher. snapshot may be nil.
func NewPriceFetcher(store PriceStore, snapshot PriceSnapshot, timeout time.Duration) *PriceFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PriceFetcher{store: store, snapshot: snapshot, timeout: timeout}
}

// Fetch returns active rows for the given backend IDs. Unknown or inactive
// IDs are absent from the result.
func (f *PriceFetcher) Fetch(ctx context.Context, serviceIDs []string) ([]models.PriceRecord, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	records, err := f.store.GetActiveByIDs(fetchCtx, serviceIDs)
	if err == nil {
		if f.snapshot != nil && len(records) > 0 {
			if serr := f.snapshot.Store(ctx, records); serr != nil {
				log.Warn().Err(serr).Msg("Failed to snapshot prices")
			}
		}
		return records, nil
	}

	if f.snapshot == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	cached, cerr := f.snapshot.Load(ctx, serviceIDs)
	if cerr != nil || len(cached) == 0 {
		log.Error().Err(err).AnErr("cache_error", cerr).Strs("service_ids", serviceIDs).Msg("Price fetch failed and no snapshot available")
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	log.Warn().Err(err).Int("cached", len(cached)).Msg("Price store unavailable, serving snapshot")
	return cached, nil
}
