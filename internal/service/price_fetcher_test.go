package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/models"
)

type memSnapshot struct {
	rows map[string]models.PriceRecord
}

func (s *memSnapshot) Store(_ context.Context, records []models.PriceRecord) error {
	for _, r := range records {
		s.rows[r.ServiceID] = r
	}
	return nil
}

func (s *memSnapshot) Load(_ context.Context, ids []string) ([]models.PriceRecord, error) {
	var out []models.PriceRecord
	for _, id := range ids {
		if r, ok := s.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type slowPriceStore struct{}

func (slowPriceStore) GetActiveByIDs(ctx context.Context, _ []string) ([]models.PriceRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPriceFetcher_SnapshotFallback(t *testing.T) {
	store := &stubPriceStore{prices: map[string]int64{"mh_couples_therapy": 3000}}
	snap := &memSnapshot{rows: map[string]models.PriceRecord{}}
	f := NewPriceFetcher(store, snap, time.Second)

	rows, err := f.Fetch(context.Background(), []string{"mh_couples_therapy"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, snap.rows, "mh_couples_therapy")

	store.err = errors.New("db down")
	rows, err = f.Fetch(context.Background(), []string{"mh_couples_therapy"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "3000", rows[0].Price.String())

	_, err = f.Fetch(context.Background(), []string{"legal_mediation"})
	assert.Error(t, err)
}

func TestPriceFetcher_Timeout(t *testing.T) {
	f := NewPriceFetcher(slowPriceStore{}, nil, 20*time.Millisecond)

	start := time.Now()
	_, err := f.Fetch(context.Background(), []string{"mh_couples_therapy"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPriceFetcher_EmptyIDs(t *testing.T) {
	store := &stubPriceStore{}
	rows, err := NewPriceFetcher(store, nil, time.Second).Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, store.calls)
}

func TestPriceMapper_ToPricingMap(t *testing.T) {
	m := catalog.NewMapper()
	rows := []models.PriceRecord{
		{ServiceID: "couples_therapy", Price: decimal.NewFromInt(2800), IsActive: true},
		{ServiceID: "mh_couples_therapy", Price: decimal.NewFromInt(3000), IsActive: true},
		{ServiceID: "legal_mediation", Price: decimal.NewFromInt(1500), IsActive: false},
		{ServiceID: "legal_document_review", Price: decimal.Zero, IsActive: true},
		{ServiceID: "holistic_mindfulness", Price: decimal.NewFromInt(900), IsActive: true},
	}

	pm := NewPriceMapper(m, catalog.NewFallbackTable(m, decimal.NewFromInt(11), false)).
		ToPricingMap(rows, []string{"pkg_couples_wellness"})
	assert.Equal(t, "3000", pm["couples-therapy"].String())
	assert.Equal(t, "900", pm["mindfulness-session"].String())
	assert.NotContains(t, pm, "mediation")
	assert.NotContains(t, pm, "document-review")
	assert.NotContains(t, pm, "couples-wellness-package")

	injecting := NewPriceMapper(m, catalog.NewFallbackTable(m, decimal.NewFromInt(11), true))
	pm = injecting.ToPricingMap(nil, []string{"pkg_couples_wellness"})
	assert.Equal(t, "4500", pm["couples-wellness-package"].String())
}
