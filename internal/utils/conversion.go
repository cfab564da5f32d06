/*
This file contains display and parsing conversions between fixed-point integer amounts
(uniform 18-decimal values, token units) and human-facing float64 / decimal representations.
Accounting never goes through these; they feed logs, the HTTP API and the configuration layer.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/elys-network/stablerouter/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

func checkPrecision(precision int) error {
	if precision < 0 || precision > 36 {
		return fmt.Errorf("%w: %d (must be between 0 and 36)", ErrInvalidPrecision, precision)
	}
	return nil
}

// ScaledToDecimal renders an integer scaled by 10^precision as an exact decimal.
func ScaledToDecimal(amount sdkmath.Int, precision int) (decimal.Decimal, error) {
	if err := checkPrecision(precision); err != nil {
		return decimal.Zero, err
	}
	if amount.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	return decimal.NewFromBigInt(amount.BigInt(), int32(-precision)), nil
}

// UniformToDecimal renders a uniform amount (18 decimals) as an exact decimal.
// A nil amount renders as zero.
func UniformToDecimal(amount sdkmath.Int) decimal.Decimal {
	if amount.IsNil() {
		return decimal.Zero
	}
	d, _ := ScaledToDecimal(amount, types.UniformDecimals)
	return d
}

// FormatUniform renders a uniform amount as a plain decimal string, e.g. "100.25".
func FormatUniform(amount sdkmath.Int) string {
	return UniformToDecimal(amount).String()
}

// ScaledToFloat64 converts a scaled integer to float64 for logging and approximate display.
func ScaledToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}
	d, err := ScaledToDecimal(amount, precision)
	if err != nil {
		return 0, err
	}

	resultFloat, _ := d.Float64()
	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}
	return resultFloat, nil
}

// UniformToFloat64 is ScaledToFloat64 at uniform precision; errors collapse to zero.
func UniformToFloat64(amount sdkmath.Int) float64 {
	f, err := ScaledToFloat64(amount, types.UniformDecimals)
	if err != nil {
		return 0
	}
	return f
}

// DecimalToScaled converts a non-negative decimal to an integer scaled by 10^precision,
// truncating digits beyond the precision.
func DecimalToScaled(amount decimal.Decimal, precision int) (sdkmath.Int, error) {
	if err := checkPrecision(precision); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	scaled := amount.Shift(int32(precision)).Truncate(0)
	result, ok := sdkmath.NewIntFromString(scaled.String())
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrConversionFailed, scaled.String())
	}
	return result, nil
}

// ParseUniform parses a decimal string such as "0.1" or "50" into a uniform amount.
func ParseUniform(value string) (sdkmath.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return DecimalToScaled(d, types.UniformDecimals)
}

// Float64ToScaled converts a float64 to an integer scaled by 10^precision.
func Float64ToScaled(amount float64, precision int) (sdkmath.Int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}
	// Go through the decimal string form to avoid binary floating point artifacts
	return DecimalToScaled(decimal.NewFromFloat(amount), precision)
}
