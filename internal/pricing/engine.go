/*

This file contains the price engine. It produces a manipulation-resistant
price for the managed pair from two independent sources: the pool's own
time-weighted tick history and an external reference feed. An instantaneous
pool price is never allowed to size a capital-moving operation without a
corroborating deviation check against one of these.

All prices leave this package as 18-decimal fixed point, quoted as asset1
per asset0 in human units.

*/

package pricing

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/defiedge/rangevault/internal/feed"
	"github.com/defiedge/rangevault/internal/logger"
	"github.com/defiedge/rangevault/internal/pool"
	"github.com/defiedge/rangevault/internal/registry"
	"github.com/defiedge/rangevault/internal/types"
	"github.com/defiedge/rangevault/internal/univ3"
	"github.com/defiedge/rangevault/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrStalePool     = errors.New("pool has insufficient history for the requested period")
	ErrStalePrice    = errors.New("reference feed data is older than its staleness bound")
	ErrInvalidPrice  = errors.New("price is invalid")
	ErrNilDependency = errors.New("price engine dependency is nil")
)

var priceLogger = logger.GetForComponent("price_engine")

// Engine computes prices and deviation checks for the managed pair.
type Engine struct {
	source feed.Source
	reg    registry.Registry
	clock  func() time.Time
}

// NewEngine builds a price engine from its capabilities.
func NewEngine(source feed.Source, reg registry.Registry, clock func() time.Time) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: feed source", ErrNilDependency)
	}
	if reg == nil {
		return nil, fmt.Errorf("%w: registry", ErrNilDependency)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{source: source, reg: reg, clock: clock}, nil
}

// TwapPrice integrates the pool's cumulative tick history over the pair's
// trailing window and converts the time-weighted average tick to a price.
func (e *Engine) TwapPrice(p pool.Pool, pair types.PairConfig) (sdkmath.LegacyDec, error) {
	if p == nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: pool", ErrNilDependency)
	}
	avgTick, err := p.AverageTick(pair.TwapWindow)
	if err != nil {
		return sdkmath.LegacyDec{}, errors.Join(ErrStalePool, err)
	}
	raw, err := univ3.TickToPrice(avgTick)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return adjustedPrice(raw, pair)
}

// SpotPrice returns the pool's instantaneous price for the pair. Callers
// must pair it with a deviation check before trusting it.
func (e *Engine) SpotPrice(p pool.Pool, pair types.PairConfig) (sdkmath.LegacyDec, error) {
	if p == nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: pool", ErrNilDependency)
	}
	sqrtP := p.CurrentSqrtPrice()
	if sqrtP.Sign() <= 0 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: sqrt price %s", ErrInvalidPrice, sqrtP.String())
	}
	return adjustedPrice(sqrtP.Mul(sqrtP), pair)
}

// ReferencePrice reads the latest feed value for the pair, combining two
// single-asset USD legs when the feed does not serve the pair directly.
// Readings older than maxAge are rejected.
func (e *Engine) ReferencePrice(base, quote string, maxAge time.Duration) (sdkmath.LegacyDec, error) {
	if maxAge <= 0 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: max age %s", ErrInvalidPrice, maxAge)
	}

	answer, err := e.source.LatestAnswer(base, quote)
	if err == nil {
		return e.answerToDec(answer, maxAge)
	}
	if !errors.Is(err, feed.ErrPairNotServed) {
		return sdkmath.LegacyDec{}, err
	}

	// Fall back to two USD legs: base/USD divided by quote/USD.
	baseAnswer, err := e.source.LatestAnswer(base, "USD")
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	quoteAnswer, err := e.source.LatestAnswer(quote, "USD")
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	baseDec, err := e.answerToDec(baseAnswer, maxAge)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	quoteDec, err := e.answerToDec(quoteAnswer, maxAge)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if quoteDec.IsZero() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: zero quote leg", ErrInvalidPrice)
	}
	return baseDec.Quo(quoteDec), nil
}

// PriceOf dispatches to TWAP or reference pricing per the pair configuration
// and returns a price of asset0 in terms of asset1.
func (e *Engine) PriceOf(p pool.Pool, pair types.PairConfig) (sdkmath.LegacyDec, error) {
	if err := pair.Validate(); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	switch pair.Source {
	case types.PriceSourceTWAP:
		return e.TwapPrice(p, pair)
	default:
		maxAge, err := e.heartbeat(pair)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		return e.ReferencePrice(pair.Asset0.Symbol, pair.Asset1.Symbol, maxAge)
	}
}

// Normalize rescales a raw amount in the asset's native precision to the
// 18-decimal unit.
func (e *Engine) Normalize(asset types.Asset, raw sdkmath.Int) (sdkmath.LegacyDec, error) {
	if err := asset.Validate(); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return utils.NormalizeAmount(raw, asset.Decimals)
}

// DeviationExceeds reports whether |poolPrice - refPrice| / refPrice is
// greater than the allowed fraction.
func DeviationExceeds(poolPrice, refPrice, allowed sdkmath.LegacyDec) (bool, error) {
	if poolPrice.IsNil() || refPrice.IsNil() || allowed.IsNil() {
		return false, fmt.Errorf("%w: nil input", ErrInvalidPrice)
	}
	if !refPrice.IsPositive() {
		return false, fmt.Errorf("%w: reference price %s", ErrInvalidPrice, refPrice.String())
	}
	if poolPrice.IsNegative() {
		return false, fmt.Errorf("%w: pool price %s", ErrInvalidPrice, poolPrice.String())
	}
	diff := poolPrice.Sub(refPrice).Abs()
	deviation := diff.Quo(refPrice)
	return deviation.GT(allowed), nil
}

// heartbeat resolves the staleness bound: the pair override wins, otherwise
// the registry default for the pair applies.
func (e *Engine) heartbeat(pair types.PairConfig) (time.Duration, error) {
	if pair.Heartbeat > 0 {
		return pair.Heartbeat, nil
	}
	return e.reg.DefaultHeartbeat(pair.PairKey())
}

func (e *Engine) answerToDec(answer feed.Answer, maxAge time.Duration) (sdkmath.LegacyDec, error) {
	age := e.clock().Sub(answer.UpdatedAt)
	if age > maxAge {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: age %s exceeds %s", ErrStalePrice, age, maxAge)
	}
	factor, err := utils.Pow10(answer.Decimals)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	value := sdkmath.LegacyNewDecFromInt(answer.Value).Quo(factor)
	if !value.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidPrice, value.String())
	}
	return value, nil
}

// adjustedPrice converts a raw pool price (native asset1 per native asset0)
// into the 18-decimal human-unit price by scaling for the decimal gap.
func adjustedPrice(raw decimal.Decimal, pair types.PairConfig) (sdkmath.LegacyDec, error) {
	if raw.Sign() <= 0 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidPrice, raw.String())
	}
	shift := pair.Asset0.Decimals - pair.Asset1.Decimals
	adjusted := raw.Shift(int32(shift))
	out, err := sdkmath.LegacyNewDecFromStr(adjusted.StringFixed(18))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %w", ErrInvalidPrice, err)
	}
	if !out.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: rounds to zero", ErrInvalidPrice)
	}
	return out, nil
}
