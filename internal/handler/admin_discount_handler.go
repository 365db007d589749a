package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// DiscountAdmin manages discount codes.
type DiscountAdmin interface {
	List(ctx context.Context) ([]models.DiscountCode, error)
	Get(ctx context.Context, id int64) (*models.DiscountCode, error)
	Create(ctx context.Context, d *models.DiscountCode) error
	Update(ctx context.Context, d *models.DiscountCode) error
	Toggle(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

// AdminDiscountHandler handles /v1/admin/discounts.
type AdminDiscountHandler struct {
	discounts DiscountAdmin
}

// NewAdminDiscountHandler constructs an AdminDiscountHandler.
func NewAdminDiscountHandler(discounts DiscountAdmin) *AdminDiscountHandler {
	return &AdminDiscountHandler{discounts: discounts}
}

func (h *AdminDiscountHandler) List(c *gin.Context) {
	rows, err := h.discounts.List(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Discount codes retrieved", rows)
}

func (h *AdminDiscountHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.discounts.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Discount code retrieved", d)
}

func (h *AdminDiscountHandler) Create(c *gin.Context) {
	var d models.DiscountCode
	if err := c.ShouldBindJSON(&d); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if err := h.discounts.Create(c.Request.Context(), &d); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 201, "Discount code created", d)
}

func (h *AdminDiscountHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var d models.DiscountCode
	if err := c.ShouldBindJSON(&d); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}
	d.ID = id
	if err := h.discounts.Update(c.Request.Context(), &d); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Discount code updated", d)
}

// Toggle handles PATCH /v1/admin/discounts/:id/toggle
func (h *AdminDiscountHandler) Toggle(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req struct {
		IsActive *bool `json:"isActive" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "isActive is required")
		return
	}
	if err := h.discounts.Toggle(c.Request.Context(), id, *req.IsActive); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Discount code updated", gin.H{"id": id, "isActive": *req.IsActive})
}

func (h *AdminDiscountHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.discounts.Delete(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Discount code deleted", nil)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.Error(c, 400, "INVALID_ID", "Invalid id")
		return 0, false
	}
	return id, true
}
