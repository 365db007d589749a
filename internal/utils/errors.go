package utils

import "errors"

// Common application errors used across services.
var (
	ErrPricingUnavailable = errors.New("PRICING_UNAVAILABLE")
	ErrDiscountInvalid    = errors.New("DISCOUNT_INVALID")
	ErrPaymentUnverified  = errors.New("PAYMENT_UNVERIFIED")
	ErrPersistence        = errors.New("PERSISTENCE_FAILURE")
	ErrBookingNotFound    = errors.New("BOOKING_NOT_FOUND")
	ErrPaymentNotFound    = errors.New("PAYMENT_NOT_FOUND")
	ErrDiscountNotFound   = errors.New("DISCOUNT_NOT_FOUND")
	ErrPriceNotFound      = errors.New("PRICE_NOT_FOUND")
	ErrDuplicateDiscount  = errors.New("DUPLICATE_DISCOUNT_CODE")
	ErrIllegalTransition  = errors.New("ILLEGAL_STATUS_TRANSITION")
	ErrInvalidStatus      = errors.New("INVALID_STATUS")
	ErrEmptySelection     = errors.New("EMPTY_SELECTION")
	ErrInvalidToken       = errors.New("INVALID_TOKEN")
	ErrInvalidCredentials = errors.New("INVALID_CREDENTIALS")
	ErrAccountInactive    = errors.New("ACCOUNT_INACTIVE")
	ErrGatewayUnavailable = errors.New("GATEWAY_UNAVAILABLE")
	ErrValidation         = errors.New("VALIDATION_ERROR")
)
