package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/p2hgit/p2h_api/internal/service"
	"github.com/p2hgit/p2h_api/internal/utils"
)

// PaymentReconciler verifies checkout callbacks and reports payment state.
type PaymentReconciler interface {
	VerifyAndReconcile(ctx context.Context, req service.VerifyPaymentRequest) service.VerifyPaymentResult
	PaymentStatus(ctx context.Context, orderID, paymentID string) service.PaymentStatusResult
}

// PaymentHandler handles the checkout callback and status poll.
type PaymentHandler struct {
	payments PaymentReconciler
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments PaymentReconciler) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Verify handles POST /v1/payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req service.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "MISSING_FIELD", "razorpay_payment_id, razorpay_order_id and razorpay_signature are required")
		return
	}

	res := h.payments.VerifyAndReconcile(c.Request.Context(), req)
	switch {
	case res.Success:
		message := "Payment verified"
		if !res.EmailSent {
			message = "Payment verified, confirmation email pending"
		}
		utils.Success(c, 200, message, res)
	case !res.Verified:
		utils.Error(c, 400, "PAYMENT_UNVERIFIED", "Payment signature verification failed")
	case strings.HasPrefix(res.Error, utils.ErrIllegalTransition.Error()):
		utils.Error(c, 409, "BOOKING_CLOSED", "Payment recorded but the booking is closed, please contact support")
	default:
		utils.Error(c, 500, "PERSISTENCE_FAILURE", "Payment verified but the booking could not be saved, please contact support")
	}
}

// Status handles GET /v1/payments/status?order_id=&payment_id=
func (h *PaymentHandler) Status(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("order_id"))
	paymentID := strings.TrimSpace(c.Query("payment_id"))
	if orderID == "" && paymentID == "" {
		utils.Error(c, 400, "MISSING_FIELD", "order_id or payment_id is required")
		return
	}

	res := h.payments.PaymentStatus(c.Request.Context(), orderID, paymentID)
	utils.Success(c, 200, "Payment status retrieved", res)
}
