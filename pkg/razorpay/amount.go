package razorpay

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ToPaise converts a rupee amount to the integer paise Razorpay expects,
// rounding half away from zero to the nearest paisa.
func ToPaise(rupees decimal.Decimal) int64 {
	return rupees.Mul(hundred).Round(0).IntPart()
}

// FromPaise converts paise back to rupees.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}
