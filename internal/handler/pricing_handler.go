package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/catalog"
	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// Quoter prices a selection.
type Quoter interface {
	Resolve(ctx context.Context, req service.ResolveRequest) (*service.Quote, error)
}

// DiscountChecker validates a code against a purchase.
type DiscountChecker interface {
	Validate(ctx context.Context, code string, total decimal.Decimal, serviceIDs []string) service.ValidationResult
}

// PricingHandler serves quotes and discount checks to the booking page.
type PricingHandler struct {
	pricing   Quoter
	discounts DiscountChecker
	mapper    *catalog.Mapper
}

// NewPricingHandler constructs a PricingHandler.
func NewPricingHandler(pricing Quoter, discounts DiscountChecker, mapper *catalog.Mapper) *PricingHandler {
	return &PricingHandler{pricing: pricing, discounts: discounts, mapper: mapper}
}

// Quote handles POST /v1/pricing/quote
func (h *PricingHandler) Quote(c *gin.Context) {
	var req service.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	quote, err := h.pricing.Resolve(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}

	message := "Quote resolved"
	if quote.PriceUnavailable {
		message = "Price unavailable"
	}
	utils.Success(c, 200, message, quote)
}

type validateDiscountRequest struct {
	Code     string          `json:"code" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Services []string        `json:"services"`
}

// ValidateDiscount handles POST /v1/discounts/validate
func (h *PricingHandler) ValidateDiscount(c *gin.Context) {
	var req validateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "code is required")
		return
	}
	if !req.Amount.IsPositive() {
		utils.Error(c, 400, "INVALID_REQUEST", "amount must be positive")
		return
	}

	ids := append([]string{}, req.Services...)
	ids = append(ids, h.mapper.Expand(req.Services)...)
	res := h.discounts.Validate(c.Request.Context(), req.Code, req.Amount, ids)

	utils.Success(c, 200, res.Message, gin.H{
		"valid":          res.Valid,
		"discountAmount": res.DiscountAmount,
		"finalAmount":    req.Amount.Sub(res.DiscountAmount),
		"message":        res.Message,
	})
}
