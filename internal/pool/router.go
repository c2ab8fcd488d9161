/*

This file contains the simulated router used alongside SimulatedPool. Swaps
execute at the pool's instantaneous price less a configurable fee.

*/

package pool

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/defiedge/rangevault/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrDeadlinePassed  = errors.New("swap deadline has passed")
	ErrMinOutNotMet    = errors.New("swap output is below the required minimum")
	ErrInvalidSwapSize = errors.New("swap amount is invalid")
)

// SimulatedRouter executes swaps against a SimulatedPool's spot price.
type SimulatedRouter struct {
	pool   *SimulatedPool
	feePct decimal.Decimal // e.g. 0.003 for 30 bps
	clock  func() time.Time
}

// NewSimulatedRouter creates a router. feePct is the fraction of output
// retained as a swap fee.
func NewSimulatedRouter(p *SimulatedPool, feePct decimal.Decimal, clock func() time.Time) (*SimulatedRouter, error) {
	if p == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if feePct.IsNegative() || feePct.GreaterThanOrEqual(decimal.New(1, 0)) {
		return nil, fmt.Errorf("invalid router fee: %s", feePct.String())
	}
	if clock == nil {
		clock = time.Now
	}
	return &SimulatedRouter{pool: p, feePct: feePct, clock: clock}, nil
}

func (r *SimulatedRouter) SwapExactIn(zeroForOne bool, amountIn, minOut sdkmath.Int, deadline int64) (sdkmath.Int, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.Int{}, ErrInvalidSwapSize
	}
	if minOut.IsNil() || minOut.IsNegative() {
		return sdkmath.Int{}, ErrInvalidSwapSize
	}
	if deadline > 0 && r.clock().Unix() > deadline {
		return sdkmath.Int{}, fmt.Errorf("%w: %d", ErrDeadlinePassed, deadline)
	}

	sqrtP := r.pool.CurrentSqrtPrice()
	price := sqrtP.Mul(sqrtP) // asset1 per asset0

	in, err := utils.SDKIntToDecimal(amountIn)
	if err != nil {
		return sdkmath.Int{}, err
	}

	var out decimal.Decimal
	if zeroForOne {
		out = in.Mul(price)
	} else {
		out = in.DivRound(price, 40)
	}
	out = out.Mul(decimal.New(1, 0).Sub(r.feePct)).Floor()

	amountOut, err := utils.DecimalToSDKInt(out)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if amountOut.LT(minOut) {
		return sdkmath.Int{}, fmt.Errorf("%w: %s < %s", ErrMinOutNotMet, amountOut.String(), minOut.String())
	}
	return amountOut, nil
}
