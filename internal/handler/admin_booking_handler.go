package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/p2hgit/p2h_api/internal/middleware"
	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// BookingAdmin is what the console may do with bookings.
type BookingAdmin interface {
	List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	ChangeStatus(ctx context.Context, id, status string) (*models.Booking, error)
	Delete(ctx context.Context, id string) error
}

// RecoveryAdmin completes or opens recovered bookings.
type RecoveryAdmin interface {
	CompleteRecovery(ctx context.Context, bookingID string, details models.BookingDetails) (*models.Booking, error)
	RecoverPayment(ctx context.Context, in service.RecoveryInput) (*models.Booking, error)
}

// AdminBookingHandler handles booking management for the admin console.
type AdminBookingHandler struct {
	bookings BookingAdmin
	recovery RecoveryAdmin
}

// NewAdminBookingHandler constructs an AdminBookingHandler.
func NewAdminBookingHandler(bookings BookingAdmin, recovery RecoveryAdmin) *AdminBookingHandler {
	return &AdminBookingHandler{bookings: bookings, recovery: recovery}
}

// List handles GET /v1/admin/bookings
func (h *AdminBookingHandler) List(c *gin.Context) {
	page, limit := utils.ParsePagination(c)
	f := models.BookingFilter{
		Email:  strings.ToLower(strings.TrimSpace(c.Query("email"))),
		Search: strings.TrimSpace(c.Query("search")),
		Page:   page,
		Limit:  limit,
	}
	if status := c.Query("status"); status != "" {
		st, err := models.ParseBookingStatus(status)
		if err != nil {
			handleError(c, err)
			return
		}
		f.Status = st
	}

	rows, total, err := h.bookings.List(c.Request.Context(), f)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.SuccessWithPagination(c, 200, "Bookings retrieved", rows, page, limit, total)
}

// Get handles GET /v1/admin/bookings/:id
func (h *AdminBookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Booking retrieved", b)
}

// UpdateStatus handles PATCH /v1/admin/bookings/:id/status
func (h *AdminBookingHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "status is required")
		return
	}

	b, err := h.bookings.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		handleError(c, err)
		return
	}
	log.Info().
		Str("admin", middleware.AdminEmail(c)).
		Str("reference_id", b.ReferenceID).
		Str("status", string(b.Status)).
		Msg("Admin changed booking status")
	utils.Success(c, 200, "Booking status updated", b)
}

// CompleteRecovery handles POST /v1/admin/bookings/:id/complete
func (h *AdminBookingHandler) CompleteRecovery(c *gin.Context) {
	var req models.BookingDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.ClientName == "" || req.ClientEmail == "" {
		utils.Error(c, 400, "MISSING_FIELD", "clientName and clientEmail are required")
		return
	}

	b, err := h.recovery.CompleteRecovery(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Booking completed", b)
}

type recoverPaymentRequest struct {
	PaymentID string          `json:"paymentId" binding:"required"`
	OrderID   string          `json:"orderId"`
	Amount    decimal.Decimal `json:"amount"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
}

// RecoverPayment handles POST /v1/admin/payments/recover
func (h *AdminBookingHandler) RecoverPayment(c *gin.Context) {
	var req recoverPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "paymentId is required")
		return
	}
	if !req.Amount.IsPositive() {
		utils.Error(c, 400, "INVALID_REQUEST", "amount must be positive")
		return
	}

	b, err := h.recovery.RecoverPayment(c.Request.Context(), service.RecoveryInput{
		PaymentID: strings.TrimSpace(req.PaymentID),
		OrderID:   strings.TrimSpace(req.OrderID),
		Amount:    req.Amount,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Payment recovered", b)
}

// Delete handles DELETE /v1/admin/bookings/:id
func (h *AdminBookingHandler) Delete(c *gin.Context) {
	if err := h.bookings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Booking deleted", nil)
}
