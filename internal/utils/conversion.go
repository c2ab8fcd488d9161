/*
This file contains common utility functions for converting between different
numeric types, particularly for SDK math operations and precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// Pow10 returns 10^exp as a LegacyDec. exp must be between 0 and 18.
func Pow10(exp int) (sdkmath.LegacyDec, error) {
	if exp < 0 || exp > 18 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, exp)
	}
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < exp; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor, nil
}

// NormalizeAmount rescales a raw integer amount expressed in an asset's
// native decimal precision to the 18-decimal fixed-point unit. Lossless for
// precisions up to 18.
func NormalizeAmount(amount sdkmath.Int, precision int) (sdkmath.LegacyDec, error) {
	if amount.IsNil() {
		return sdkmath.LegacyDec{}, ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.LegacyDec{}, ErrAmountNegative
	}
	factor, err := Pow10(precision)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return sdkmath.LegacyNewDecFromInt(amount).Quo(factor), nil
}

// DenormalizeAmount converts an 18-decimal fixed-point value back to a raw
// integer amount in the asset's native precision, truncating toward zero.
func DenormalizeAmount(value sdkmath.LegacyDec, precision int) (sdkmath.Int, error) {
	if value.IsNil() {
		return sdkmath.Int{}, ErrAmountNil
	}
	if value.IsNegative() {
		return sdkmath.Int{}, ErrAmountNegative
	}
	factor, err := Pow10(precision)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return value.Mul(factor).TruncateInt(), nil
}

// SDKIntToDecimal bridges an SDK Int into a shopspring decimal.
func SDKIntToDecimal(amount sdkmath.Int) (decimal.Decimal, error) {
	if amount.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	d, err := decimal.NewFromString(amount.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return d, nil
}

// DecimalToSDKInt bridges a shopspring decimal into an SDK Int, truncating
// any fractional part toward zero.
func DecimalToSDKInt(d decimal.Decimal) (sdkmath.Int, error) {
	truncated := d.Truncate(0)
	out, ok := sdkmath.NewIntFromString(truncated.String())
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("%w: %s is not an integer", ErrConversionFailed, truncated.String())
	}
	return out, nil
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision
// handling. Display use only; value math stays in fixed point.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}
	factor, err := Pow10(precision)
	if err != nil {
		return 0, err
	}

	result := sdkmath.LegacyNewDecFromInt(amount).Quo(factor)
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// Float64ToSDKInt converts a float64 to SDK Int with proper precision handling
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Use string conversion to avoid floating point precision issues
	formatStr := fmt.Sprintf("%%.%df", precision)
	amountStr := fmt.Sprintf(formatStr, amount)

	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	factor, err := Pow10(precision)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	result := decAmount.Mul(factor).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return result, nil
}
