package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedAmount is returned when an amount string cannot be parsed as a
	// decimal number.
	ErrMalformedAmount = errors.New("malformed amount")
	// ErrAmountPrecision is returned when an amount carries more than two decimal
	// places and therefore cannot be represented in ngwee.
	ErrAmountPrecision = errors.New("amount has sub-ngwee precision")
	// ErrAmountRange is returned when an amount does not fit in an int64 ngwee value.
	ErrAmountRange = errors.New("amount out of range")
)

// ParseAmount converts a two-decimal amount string (e.g. "100.00", "0.5") into
// ngwee. Sign is preserved; callers enforce positivity where required.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrMalformedAmount
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, ErrAmountPrecision
	}
	big := minor.BigInt()
	if !big.IsInt64() {
		return 0, ErrAmountRange
	}
	return big.Int64(), nil
}

// FormatAmount renders a ngwee value as a fixed two-decimal string.
func FormatAmount(ngwee int64) string {
	return decimal.New(ngwee, -2).StringFixed(2)
}
