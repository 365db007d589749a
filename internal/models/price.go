package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PriceType string

const (
	PriceTypeService PriceType = "service"
	PriceTypePackage PriceType = "package"
)

// PriceRecord is one row of service_prices keyed by backend service ID.
type PriceRecord struct {
	ID        int64           `db:"id" json:"id"`
	ServiceID string          `db:"service_id" json:"serviceId"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Currency  string          `db:"currency" json:"currency"`
	Type      PriceType       `db:"type" json:"type"`
	IsActive  bool            `db:"is_active" json:"isActive"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}
