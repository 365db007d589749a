package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// PriceAdmin maintains the price catalogue.
type PriceAdmin interface {
	List(ctx context.Context) ([]service.CatalogEntry, error)
	Upsert(ctx context.Context, p *models.PriceRecord) error
	Toggle(ctx context.Context, serviceID string, active bool) error
}

// AdminPriceHandler handles /v1/admin/prices.
type AdminPriceHandler struct {
	prices PriceAdmin
}

func NewAdminPriceHandler(prices PriceAdmin) *AdminPriceHandler {
	return &AdminPriceHandler{prices: prices}
}

func (h *AdminPriceHandler) List(c *gin.Context) {
	rows, err := h.prices.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Prices retrieved", rows)
}

// Upsert handles PUT /v1/admin/prices/:serviceId
func (h *AdminPriceHandler) Upsert(c *gin.Context) {
	var p models.PriceRecord
	if err := c.ShouldBindJSON(&p); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}
	p.ServiceID = c.Param("serviceId")
	if err := h.prices.Upsert(c.Request.Context(), &p); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Price saved", p)
}

// Toggle handles PATCH /v1/admin/prices/:serviceId/toggle
func (h *AdminPriceHandler) Toggle(c *gin.Context) {
	var req struct {
		IsActive *bool `json:"isActive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "isActive is required")
		return
	}
	serviceID := c.Param("serviceId")
	if err := h.prices.Toggle(c.Request.Context(), serviceID, *req.IsActive); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Price updated", gin.H{"serviceId": serviceID, "isActive": *req.IsActive})
}
