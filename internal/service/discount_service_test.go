package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestComputeDiscount_Clamp(t *testing.T) {
	pct := &models.DiscountCode{
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     decimal.NewFromInt(50),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(500)),
	}
	assert.Equal(t, "500", ComputeDiscount(pct, decimal.NewFromInt(2200)).String())
	assert.Equal(t, "200", ComputeDiscount(pct, decimal.NewFromInt(400)).String())

	fixed := &models.DiscountCode{
		DiscountType:  models.DiscountFixed,
		DiscountValue: decimal.NewFromInt(3000),
	}
	assert.Equal(t, "2200", ComputeDiscount(fixed, decimal.NewFromInt(2200)).String())

	odd := &models.DiscountCode{
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(15),
	}
	assert.Equal(t, "149.85", ComputeDiscount(odd, decimal.NewFromInt(999)).String())
}

func TestValidate_OrderedChecks(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)
	limit := 5

	store := newMemDiscountStore(
		&models.DiscountCode{Code: "OFF", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100)},
		&models.DiscountCode{Code: "LATER", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true, StartDate: &tomorrow},
		&models.DiscountCode{Code: "OLD", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true, ExpiryDate: &yesterday},
		&models.DiscountCode{Code: "USED", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true, UsageLimit: &limit, UsageCount: 5},
		&models.DiscountCode{Code: "MIN", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true, MinPurchaseAmount: decimal.NewNullDecimal(decimal.NewFromInt(3000))},
		&models.DiscountCode{Code: "LEGAL", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true, ApplicableServices: []string{"Divorce-Consultation"}},
		&models.DiscountCode{Code: "GOOD", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(100), IsActive: true, StartDate: &yesterday, ExpiryDate: &tomorrow},
	)
	svc := NewDiscountService(store, fixedClock(now))
	total := decimal.NewFromInt(2200)
	services := []string{"mental-health-counselling", "mh_individual_counselling"}

	cases := []struct {
		code    string
		valid   bool
		message string
	}{
		{"", false, msgDiscountInvalid},
		{"MISSING", false, msgDiscountInvalid},
		{"OFF", false, msgDiscountInvalid},
		{"LATER", false, msgDiscountNotStarted},
		{"OLD", false, msgDiscountExpired},
		{"USED", false, msgDiscountExhausted},
		{"MIN", false, "A minimum purchase of ₹3000 is required for this code"},
		{"LEGAL", false, msgDiscountNotApplicable},
		{"good", true, msgDiscountApplied},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			res := svc.Validate(context.Background(), tc.code, total, services)
			assert.Equal(t, tc.valid, res.Valid)
			assert.Equal(t, tc.message, res.Message)
		})
	}
}

func TestValidate_Expiry(t *testing.T) {
	expiry := time.Date(2026, 10, 31, 23, 59, 59, 0, time.UTC)
	store := newMemDiscountStore(&models.DiscountCode{
		Code:          "DIWALI",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20),
		IsActive:      true,
		ExpiryDate:    &expiry,
	})
	total := decimal.NewFromInt(1000)

	before := NewDiscountService(store, fixedClock(expiry.Add(-time.Minute)))
	res := before.Validate(context.Background(), "DIWALI", total, nil)
	assert.True(t, res.Valid)
	assert.Equal(t, "200", res.DiscountAmount.String())

	after := NewDiscountService(store, fixedClock(expiry.Add(time.Second)))
	res = after.Validate(context.Background(), "DIWALI", total, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, msgDiscountExpired, res.Message)
}

func TestValidate_StoreError(t *testing.T) {
	store := newMemDiscountStore()
	store.err = errors.New("db down")
	res := NewDiscountService(store, nil).Validate(context.Background(), "SAVE10", decimal.NewFromInt(100), nil)
	assert.False(t, res.Valid)
	assert.Equal(t, msgDiscountUnavailable, res.Message)
}

func TestDiscountService_ApplyByCode(t *testing.T) {
	code := &models.DiscountCode{Code: "SAVE10", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), IsActive: true}
	svc := NewDiscountService(newMemDiscountStore(code), nil)

	require.NoError(t, svc.ApplyByCode(context.Background(), "save10"))
	assert.Equal(t, 1, code.UsageCount)
	assert.ErrorIs(t, svc.ApplyByCode(context.Background(), "NOPE"), utils.ErrDiscountNotFound)
}

func TestDiscountService_CreateValidates(t *testing.T) {
	svc := NewDiscountService(newMemDiscountStore(), nil)

	err := svc.Create(context.Background(), &models.DiscountCode{
		Code: "x", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(120),
	})
	assert.ErrorIs(t, err, utils.ErrDiscountInvalid)

	d := &models.DiscountCode{Code: " welcome ", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(250), IsActive: true}
	require.NoError(t, svc.Create(context.Background(), d))
	assert.Equal(t, "WELCOME", d.Code)
}
