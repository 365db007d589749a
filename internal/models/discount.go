package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// DiscountCode is an admin-managed promo code. Code is stored upper-case.
type DiscountCode struct {
	ID                 int64               `db:"id" json:"id"`
	Code               string              `db:"code" json:"code"`
	Description        *string             `db:"description" json:"description,omitempty"`
	DiscountType       DiscountType        `db:"discount_type" json:"discountType"`
	DiscountValue      decimal.Decimal     `db:"discount_value" json:"discountValue"`
	MinPurchaseAmount  decimal.NullDecimal `db:"min_purchase_amount" json:"minPurchaseAmount"`
	MaxDiscountAmount  decimal.NullDecimal `db:"max_discount_amount" json:"maxDiscountAmount"`
	UsageLimit         *int                `db:"usage_limit" json:"usageLimit,omitempty"`
	UsageCount         int                 `db:"usage_count" json:"usageCount"`
	StartDate          *time.Time          `db:"start_date" json:"startDate,omitempty"`
	ExpiryDate         *time.Time          `db:"expiry_date" json:"expiryDate,omitempty"`
	ApplicableServices pq.StringArray      `db:"applicable_services" json:"applicableServices"`
	IsActive           bool                `db:"is_active" json:"isActive"`
	CreatedAt          time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updatedAt"`
}
