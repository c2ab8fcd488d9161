/*

This file implements the concentrated-liquidity math shared by the price
engine and the pool boundary: tick <-> price conversion and the amount /
liquidity formulas for a tick range.

Prices here are raw pool prices (asset1 per asset0 in native decimals);
decimal adjustment for the pair happens in the pricing package.

*/

package univ3

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	MinTick = -887272
	MaxTick = 887272

	// Internal rounding applied between multiplications so digit counts
	// stay bounded during exponentiation. 40 fractional digits keeps far
	// more precision than the 18-decimal unit the callers consume.
	workingScale = 40
)

var (
	ErrTickOutOfRange   = errors.New("tick is out of range")
	ErrInvalidLiquidity = errors.New("liquidity is invalid")
	ErrInvalidSqrtPrice = errors.New("sqrt price is invalid")

	tickBase = decimal.RequireFromString("1.0001")
	two      = decimal.NewFromInt(2)
)

// TickToPrice returns 1.0001^tick.
func TickToPrice(tick int) (decimal.Decimal, error) {
	if tick < MinTick || tick > MaxTick {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrTickOutOfRange, tick)
	}
	if tick == 0 {
		return decimal.New(1, 0), nil
	}

	exp := tick
	if exp < 0 {
		exp = -exp
	}

	// Square-and-multiply with bounded intermediate scale.
	result := decimal.New(1, 0)
	base := tickBase
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base).Round(workingScale)
		}
		base = base.Mul(base).Round(workingScale)
		exp >>= 1
	}

	if tick < 0 {
		result = decimal.New(1, 0).DivRound(result, workingScale)
	}
	return result, nil
}

// SqrtPriceAtTick returns sqrt(1.0001^tick).
func SqrtPriceAtTick(tick int) (decimal.Decimal, error) {
	price, err := TickToPrice(tick)
	if err != nil {
		return decimal.Zero, err
	}
	return Sqrt(price)
}

// Sqrt computes the square root of a non-negative decimal by Newton
// iteration, seeded from the float64 approximation.
func Sqrt(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: sqrt of negative %s", ErrInvalidSqrtPrice, d.String())
	}
	if d.IsZero() {
		return decimal.Zero, nil
	}

	f, _ := d.Float64()
	guess := decimal.New(1, 0)
	if root := math.Sqrt(f); root > 0 && !math.IsInf(root, 0) {
		guess = decimal.NewFromFloat(root)
	}

	// x_{n+1} = (x_n + d/x_n) / 2. A handful of iterations converges far
	// past the working scale from a float64 seed.
	for i := 0; i < 8; i++ {
		guess = guess.Add(d.DivRound(guess, workingScale)).DivRound(two, workingScale)
	}
	return guess, nil
}

// AmountsForLiquidity returns the token amounts backing liquidity L in the
// range [sqrtA, sqrtB] with the pool at sqrtP.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if liquidity.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidLiquidity, liquidity.String())
	}
	if sqrtA.GreaterThanOrEqual(sqrtB) || sqrtA.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: bounds [%s, %s]", ErrInvalidSqrtPrice, sqrtA.String(), sqrtB.String())
	}

	switch {
	case sqrtP.LessThanOrEqual(sqrtA):
		// Entirely in asset0.
		amount0 := liquidity.Mul(sqrtB.Sub(sqrtA)).DivRound(sqrtA.Mul(sqrtB), workingScale)
		return amount0, decimal.Zero, nil
	case sqrtP.GreaterThanOrEqual(sqrtB):
		// Entirely in asset1.
		amount1 := liquidity.Mul(sqrtB.Sub(sqrtA))
		return decimal.Zero, amount1, nil
	default:
		amount0 := liquidity.Mul(sqrtB.Sub(sqrtP)).DivRound(sqrtP.Mul(sqrtB), workingScale)
		amount1 := liquidity.Mul(sqrtP.Sub(sqrtA))
		return amount0, amount1, nil
	}
}

// LiquidityForAmounts returns the maximum liquidity fully backed by the
// given amounts in the range [sqrtA, sqrtB] with the pool at sqrtP.
func LiquidityForAmounts(sqrtP, sqrtA, sqrtB, amount0, amount1 decimal.Decimal) (decimal.Decimal, error) {
	if sqrtA.GreaterThanOrEqual(sqrtB) || sqrtA.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: bounds [%s, %s]", ErrInvalidSqrtPrice, sqrtA.String(), sqrtB.String())
	}
	if amount0.IsNegative() || amount1.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amounts", ErrInvalidLiquidity)
	}

	switch {
	case sqrtP.LessThanOrEqual(sqrtA):
		return liquidityForAmount0(sqrtA, sqrtB, amount0), nil
	case sqrtP.GreaterThanOrEqual(sqrtB):
		return liquidityForAmount1(sqrtA, sqrtB, amount1), nil
	default:
		l0 := liquidityForAmount0(sqrtP, sqrtB, amount0)
		l1 := liquidityForAmount1(sqrtA, sqrtP, amount1)
		if l0.LessThan(l1) {
			return l0, nil
		}
		return l1, nil
	}
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 decimal.Decimal) decimal.Decimal {
	// L = amount0 * sqrtA * sqrtB / (sqrtB - sqrtA)
	return amount0.Mul(sqrtA).Mul(sqrtB).DivRound(sqrtB.Sub(sqrtA), workingScale)
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 decimal.Decimal) decimal.Decimal {
	// L = amount1 / (sqrtB - sqrtA)
	return amount1.DivRound(sqrtB.Sub(sqrtA), workingScale)
}
