package handler

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/p2hgit/p2h_api/internal/utils"
)

// handleError maps service errors to the response envelope.
func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrEmptySelection):
		utils.Error(c, 400, "EMPTY_SELECTION", "Select at least one service")
	case errors.Is(err, utils.ErrPricingUnavailable):
		utils.Error(c, 422, "PRICING_UNAVAILABLE", "Pricing is unavailable for this selection, please try again shortly")
	case errors.Is(err, utils.ErrDiscountInvalid):
		utils.Error(c, 400, "DISCOUNT_INVALID", detail(err, "Invalid discount code"))
	case errors.Is(err, utils.ErrPaymentUnverified):
		utils.Error(c, 400, "PAYMENT_UNVERIFIED", "Payment signature verification failed")
	case errors.Is(err, utils.ErrBookingNotFound):
		utils.Error(c, 404, "BOOKING_NOT_FOUND", "Booking not found")
	case errors.Is(err, utils.ErrPaymentNotFound):
		utils.Error(c, 404, "PAYMENT_NOT_FOUND", "Payment not found")
	case errors.Is(err, utils.ErrDiscountNotFound):
		utils.Error(c, 404, "DISCOUNT_NOT_FOUND", "Discount code not found")
	case errors.Is(err, utils.ErrPriceNotFound):
		utils.Error(c, 404, "PRICE_NOT_FOUND", "Price not found")
	case errors.Is(err, utils.ErrDuplicateDiscount):
		utils.Error(c, 409, "DUPLICATE_DISCOUNT_CODE", "Discount code already exists")
	case errors.Is(err, utils.ErrIllegalTransition):
		utils.Error(c, 409, "ILLEGAL_STATUS_TRANSITION", detail(err, "Status change not allowed"))
	case errors.Is(err, utils.ErrInvalidStatus):
		utils.Error(c, 400, "INVALID_STATUS", detail(err, "Unknown status"))
	case errors.Is(err, utils.ErrValidation):
		utils.Error(c, 400, "VALIDATION_ERROR", detail(err, "Invalid input"))
	case errors.Is(err, utils.ErrInvalidCredentials):
		utils.Error(c, 401, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, utils.ErrAccountInactive):
		utils.Error(c, 403, "ACCOUNT_INACTIVE", "Account is inactive")
	case errors.Is(err, utils.ErrGatewayUnavailable):
		utils.Error(c, 502, "GATEWAY_UNAVAILABLE", "Payment gateway is unavailable, please try again")
	case errors.Is(err, utils.ErrPersistence):
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Persistence failure")
		utils.Error(c, 500, "PERSISTENCE_FAILURE", "Failed to save, please try again")
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Unhandled error")
		utils.Error(c, 500, "INTERNAL_ERROR", "Internal server error")
	}
}

// detail returns the text wrapped after the sentinel, e.g. "DISCOUNT_INVALID: expired".
func detail(err error, fallback string) string {
	if _, after, ok := strings.Cut(err.Error(), ": "); ok && after != "" {
		return after
	}
	return fallback
}
