package pool

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// SettlementCallback is the narrow capability a pool uses to collect payment
// for a range mint. The pool requests the owed token amounts mid-call and the
// vault must transfer exactly those amounts; the vault side rejects any
// invocation that does not originate from its registered pool.
type SettlementCallback interface {
	Fulfill(poolID string, amount0, amount1 sdkmath.Int) error
}

// Pool abstracts the underlying concentrated-liquidity exchange pool.
// Implementations are trusted; the engine only specifies this boundary.
type Pool interface {
	// ID identifies the pool instance; used to authenticate settlement callbacks.
	ID() string

	// MintRange creates or extends a position and returns the token amounts
	// actually consumed. Payment is collected through cb before it returns.
	MintRange(lower, upper int, liquidity decimal.Decimal, cb SettlementCallback) (sdkmath.Int, sdkmath.Int, error)

	// BurnRange removes liquidity from a position and returns the principal
	// amounts released. Owed trading fees stay collectable via CollectOwed.
	BurnRange(lower, upper int, liquidity decimal.Decimal) (sdkmath.Int, sdkmath.Int, error)

	// CollectOwed withdraws the trading fees accrued to a position.
	CollectOwed(lower, upper int) (sdkmath.Int, sdkmath.Int, error)

	// CurrentSqrtPrice returns the pool's instantaneous sqrt price.
	CurrentSqrtPrice() decimal.Decimal

	// AverageTick integrates the pool's cumulative tick history over the
	// trailing window and returns the time-weighted average tick. It fails
	// when the pool lacks sufficient history for the window.
	AverageTick(window time.Duration) (int, error)
}

// Router abstracts the external swap router used during rebalances. The
// router enforces minOut itself; the engine still re-checks price deviation
// locally before invoking it.
type Router interface {
	SwapExactIn(zeroForOne bool, amountIn, minOut sdkmath.Int, deadline int64) (sdkmath.Int, error)
}
