package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/p2hgit/p2h_api/internal/models"
	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// BookingCreator opens booking intents and reads them back.
type BookingCreator interface {
	CreateIntent(ctx context.Context, details models.BookingDetails) (*service.BookingIntent, error)
	GetByReference(ctx context.Context, referenceID string) (*models.Booking, error)
}

// BookingHandler handles public booking endpoints.
type BookingHandler struct {
	bookings BookingCreator
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings BookingCreator) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Create handles POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var req models.BookingDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if req.ClientName == "" || req.ClientEmail == "" {
		utils.Error(c, 400, "MISSING_FIELD", "clientName and clientEmail are required")
		return
	}

	intent, err := h.bookings.CreateIntent(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 201, "Booking created", intent)
}

// Get handles GET /v1/bookings/:referenceId
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.GetByReference(c.Request.Context(), c.Param("referenceId"))
	if err != nil {
		handleError(c, err)
		return
	}
	utils.Success(c, 200, "Booking retrieved", publicBooking(b))
}

// publicBooking trims a booking to what the status page may show.
func publicBooking(b *models.Booking) gin.H {
	return gin.H{
		"referenceId":      b.ReferenceID,
		"clientName":       b.ClientName,
		"consultationType": b.ConsultationType,
		"date":             b.Date,
		"timeSlot":         b.TimeSlot,
		"services":         b.Services,
		"status":           b.Status,
		"paymentStatus":    b.PaymentStatus,
		"amount":           b.Amount,
		"emailSent":        b.EmailSent,
	}
}
